// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/models"
)

const defaultSimilarK = 10

// Store is the persistence surface the handlers write to and report on.
type Store interface {
	Ping(ctx context.Context) error
	RecordWatchEvent(ctx context.Context, userID, visionID int64) error
	Subscribe(ctx context.Context, userID, creatorID int64) error
	Unsubscribe(ctx context.Context, userID, creatorID int64) error
	GetLastRun(ctx context.Context) (*models.BatchRun, error)
	CountSimilarityEdges(ctx context.Context) (int64, error)
	CountCurrentIndexes(ctx context.Context) (int64, error)
}

// Recommender is the read path the handlers query.
type Recommender interface {
	SimilarVisions(ctx context.Context, visionID int64, k int) ([]models.SimilarVision, models.SimilaritySource, error)
	RecommendedFeed(ctx context.Context, userID int64, filter models.FeedFilter, page int) ([]models.FeedEntry, bool, error)
	TrendingVisions(ctx context.Context, filter models.FeedFilter, page int) ([]models.FeedEntry, bool, error)
}

// Handler bundles the HTTP endpoint implementations.
type Handler struct {
	store       Store
	recommender Recommender
	started     time.Time
}

// NewHandler creates a Handler over the given store and recommender.
func NewHandler(store Store, recommender Recommender) *Handler {
	return &Handler{store: store, recommender: recommender, started: time.Now()}
}

// Health reports service liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logging.Error().Err(err).Msg("Health check database ping failed")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"database unreachable", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}, start, false)
}

// Status reports pipeline state: the last batch run, edge volume and
// whether a current ANN index exists.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	lastRun, err := h.store.GetLastRun(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError,
			"failed to load run history", nil)
		return
	}
	edges, err := h.store.CountSimilarityEdges(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError,
			"failed to count similarity edges", nil)
		return
	}
	indexes, err := h.store.CountCurrentIndexes(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError,
			"failed to count index snapshots", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"last_run":         lastRun,
		"similarity_edges": edges,
		"index_available":  indexes > 0,
	}, start, false)
}

// Similar handles GET /visions/{id}/similar.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	visionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || visionID < 1 {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest,
			"vision id must be a positive integer", nil)
		return
	}

	req := SimilarRequest{K: getIntParam(r, "k", defaultSimilarK)}
	if details := validateRequest(&req); details != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed,
			"invalid query parameters", details)
		return
	}

	results, source, err := h.recommender.SimilarVisions(r.Context(), visionID, req.K)
	if errors.Is(err, database.ErrVisionNotFound) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "vision not found", nil)
		return
	}
	if err != nil {
		logging.Error().Err(err).Int64("vision_id", visionID).Msg("Similar lookup failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError,
			"similarity lookup failed", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"vision_id": visionID,
		"results":   results,
		"source":    source,
	}, start, false)
}

// Feed handles GET /feed.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := FeedRequest{
		UserID: getInt64Param(r, "user_id", 0),
		Filter: getStringParam(r, "filter", string(models.FilterAll)),
		Page:   getIntParam(r, "page", 0),
	}
	if details := validateRequest(&req); details != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed,
			"invalid query parameters", details)
		return
	}

	entries, cached, err := h.recommender.RecommendedFeed(
		r.Context(), req.UserID, models.FeedFilter(req.Filter), req.Page)
	if err != nil {
		logging.Error().Err(err).Int64("user_id", req.UserID).Msg("Feed composition failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError,
			"feed composition failed", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"page":    req.Page,
		"filter":  req.Filter,
	}, start, cached)
}

// Trending handles GET /trending.
func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := TrendingRequest{
		Filter: getStringParam(r, "filter", string(models.FilterAll)),
		Page:   getIntParam(r, "page", 0),
	}
	if details := validateRequest(&req); details != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed,
			"invalid query parameters", details)
		return
	}

	entries, cached, err := h.recommender.TrendingVisions(
		r.Context(), models.FeedFilter(req.Filter), req.Page)
	if err != nil {
		logging.Error().Err(err).Msg("Trending lookup failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError,
			"trending lookup failed", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"page":    req.Page,
		"filter":  req.Filter,
	}, start, cached)
}

// RecordWatch handles POST /watch.
func (h *Handler) RecordWatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req WatchEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", nil)
		return
	}
	if details := validateRequest(&req); details != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed,
			"invalid request body", details)
		return
	}

	err := h.store.RecordWatchEvent(r.Context(), req.UserID, req.VisionID)
	if errors.Is(err, database.ErrVisionNotFound) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "vision not found", nil)
		return
	}
	if err != nil {
		logging.Error().Err(err).
			Int64("user_id", req.UserID).
			Int64("vision_id", req.VisionID).
			Msg("Failed to record watch event")
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError,
			"failed to record watch event", nil)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"recorded": true,
	}, start, false)
}

// Subscribe handles POST /subscriptions.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.changeSubscription(w, r, h.store.Subscribe, "subscribed")
}

// Unsubscribe handles DELETE /subscriptions.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.changeSubscription(w, r, h.store.Unsubscribe, "unsubscribed")
}

func (h *Handler) changeSubscription(w http.ResponseWriter, r *http.Request,
	op func(context.Context, int64, int64) error, action string) {
	start := time.Now()

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", nil)
		return
	}
	if details := validateRequest(&req); details != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed,
			"invalid request body", details)
		return
	}

	if err := op(r.Context(), req.UserID, req.CreatorID); err != nil {
		logging.Error().Err(err).
			Int64("user_id", req.UserID).
			Int64("creator_id", req.CreatorID).
			Str("action", action).
			Msg("Subscription change failed")
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError,
			"subscription change failed", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"action": action,
	}, start, false)
}
