// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Validator instances cache
// struct metadata, so a single instance is reused for all requests.
var validate = validator.New()

// SimilarRequest holds the validated query parameters for
// GET /visions/{id}/similar.
type SimilarRequest struct {
	K int `validate:"min=1,max=50"`
}

// FeedRequest holds the validated query parameters for GET /feed.
type FeedRequest struct {
	UserID int64  `validate:"required,min=1"`
	Filter string `validate:"oneof=all live vod"`
	Page   int    `validate:"min=0,max=1000"`
}

// TrendingRequest holds the validated query parameters for GET /trending.
type TrendingRequest struct {
	Filter string `validate:"oneof=all live vod"`
	Page   int    `validate:"min=0,max=1000"`
}

// WatchEventRequest is the request body for POST /watch.
type WatchEventRequest struct {
	UserID   int64 `json:"user_id" validate:"required,min=1"`
	VisionID int64 `json:"vision_id" validate:"required,min=1"`
}

// SubscriptionRequest is the request body for subscription changes.
type SubscriptionRequest struct {
	UserID    int64 `json:"user_id" validate:"required,min=1"`
	CreatorID int64 `json:"creator_id" validate:"required,min=1"`
}

// validateRequest runs validator tags over req and flattens failures
// into a field->constraint map suitable for the error envelope.
func validateRequest(req interface{}) map[string]string {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	details := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := strings.ToLower(fe.Field())
			if fe.Param() != "" {
				details[field] = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
			} else {
				details[field] = fmt.Sprintf("failed %s", fe.Tag())
			}
		}
	} else {
		details["request"] = err.Error()
	}
	return details
}

// getIntParam reads an integer query parameter, falling back to def
// when absent or malformed. Range enforcement is left to the
// validation tags.
func getIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func getInt64Param(r *http.Request, name string, def int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func getStringParam(r *http.Request, name, def string) string {
	if raw := r.URL.Query().Get(name); raw != "" {
		return raw
	}
	return def
}
