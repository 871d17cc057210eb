// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

// Package models holds the domain types shared by the batch pipeline,
// the persistence layer and the serving path.
package models

import "time"

// VisionStatus is the publication state of a vision.
type VisionStatus string

const (
	// StatusVOD is a published on-demand video.
	StatusVOD VisionStatus = "vod"
	// StatusLive is a currently-live stream.
	StatusLive VisionStatus = "live"
	// StatusDraft is an unpublished vision, excluded from the pipeline.
	StatusDraft VisionStatus = "draft"
)

// Vision is a video (on-demand or live) in the catalog.
type Vision struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	CreatorID    int64        `json:"creator_id"`
	Status       VisionStatus `json:"status"`
	Views        int64        `json:"views"`
	Likes        int64        `json:"likes"`
	CommentCount int64        `json:"comment_count"`
	CreatedAt    time.Time    `json:"created_at"`
	Tags         []string     `json:"tags,omitempty"`

	// Batch-computed scores. Zero until the first pipeline run.
	EngagementScore          float64    `json:"engagement_score"`
	PopularityScore          float64    `json:"popularity_score"`
	LastRecommendationUpdate *time.Time `json:"last_recommendation_update,omitempty"`
}

// DaysOld returns the vision's age in whole days at the given instant,
// never negative.
func (v *Vision) DaysOld(now time.Time) int {
	days := int(now.Sub(v.CreatedAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// WatchEvent is one playback of a vision by a user.
type WatchEvent struct {
	UserID    int64     `json:"user_id"`
	VisionID  int64     `json:"vision_id"`
	WatchedAt time.Time `json:"watched_at"`
}

// ScoreUpdate carries batch-computed scores back to the catalog.
type ScoreUpdate struct {
	VisionID        int64
	EngagementScore float64
	PopularityScore float64
}

// SimilarityEdge is one directed neighbor relation produced by the
// batch pipeline. Edges are stored deduplicated: for any unordered
// pair only the direction with the higher final score survives.
type SimilarityEdge struct {
	VisionID        int64   `json:"vision_id"`
	SimilarVisionID int64   `json:"similar_vision_id"`
	SimilarityScore float64 `json:"similarity_score"`
	EngagementBoost float64 `json:"engagement_boost"`
	FinalScore      float64 `json:"final_score"`
}

// IndexSnapshot is one persisted ANN index version. Snapshots are
// append-only; exactly one row is current at any time.
type IndexSnapshot struct {
	ID         string    `json:"id"`
	Blob       []byte    `json:"-"`
	VisionIDs  []int64   `json:"vision_ids"`
	VectorSize int       `json:"vector_size"`
	CreatedAt  time.Time `json:"created_at"`
	IsCurrent  bool      `json:"is_current"`
}

// SimilaritySource identifies which lookup path produced a
// similar-visions result.
type SimilaritySource string

const (
	// SourceIndex means the result came from an ANN index query.
	SourceIndex SimilaritySource = "index"
	// SourceEdges means the result came from persisted similarity edges.
	SourceEdges SimilaritySource = "edges"
)

// SimilarVision is one entry in a similar-visions result.
type SimilarVision struct {
	VisionID int64   `json:"vision_id"`
	Score    float64 `json:"score"`
}

// FeedFilter selects which vision kinds a feed page includes.
type FeedFilter string

const (
	FilterAll  FeedFilter = "all"
	FilterLive FeedFilter = "live"
	FilterVOD  FeedFilter = "vod"
)

// Valid reports whether f is a known filter value.
func (f FeedFilter) Valid() bool {
	switch f {
	case FilterAll, FilterLive, FilterVOD:
		return true
	}
	return false
}

// FeedEntry is one ranked vision in a composed feed page.
type FeedEntry struct {
	Vision Vision  `json:"vision"`
	Score  float64 `json:"score"`
	IsLive bool    `json:"is_live"`
}

// RunStatus is the lifecycle state of a batch pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// BatchRun is one recorded pipeline execution. A row in the running
// state also acts as the lease that keeps runs mutually exclusive.
type BatchRun struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
}

// APIResponse is the uniform envelope for HTTP responses.
//
// Example success response:
//
//	{
//	  "status": "success",
//	  "data": {"results": [...]},
//	  "metadata": {"timestamp": "2026-08-29T12:00:00Z", "cached": true}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries per-response observability fields.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is the structured error body for failed requests.
//
// Common codes: VALIDATION_ERROR, NOT_FOUND, DATABASE_ERROR,
// RATE_LIMIT_EXCEEDED.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}
