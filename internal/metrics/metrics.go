// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Database query performance (DuckDB)
// - Batch pipeline step durations and outcomes
// - Serving latency and fallback sources
// - Cache efficiency

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Pipeline Metrics
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of similarity pipeline runs by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "skipped"
	)

	PipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_seconds",
			Help:    "Duration of each pipeline step in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"step"}, // "watch", "cowatch", "features", "factorize", "fuse", "score", "index"
	)

	PipelineVisionsProcessed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_visions_processed",
			Help: "Number of videos covered by the most recent pipeline run",
		},
	)

	PipelineEdgesWritten = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_edges_written",
			Help: "Number of similarity edges persisted by the most recent run",
		},
	)

	PipelineFactorizationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_factorization_fallbacks_total",
			Help: "Times the factorization step fell back to random factors",
		},
	)

	PipelineLastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful pipeline run",
		},
	)

	// Serving Metrics
	SimilarQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "similar_query_duration_seconds",
			Help:    "Latency of similar-video lookups in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"source"}, // "index", "edges"
	)

	ServingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serving_fallbacks_total",
			Help: "Similar-video lookups that fell back past the ANN index",
		},
		[]string{"reason"}, // "index_missing", "index_stale", "query_failed"
	)

	FeedCompositionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_composition_duration_seconds",
			Help:    "Time to compose a personalized feed page in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits by keyspace",
		},
		[]string{"keyspace"}, // "index", "feed", "trending"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses by keyspace",
		},
		[]string{"keyspace"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Cache backend errors by keyspace",
		},
		[]string{"keyspace"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests by method, endpoint and status code",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordPipelineStep records the duration of one pipeline step.
func RecordPipelineStep(step string, duration time.Duration) {
	PipelineStepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordPipelineRun records the outcome of a full pipeline run.
func RecordPipelineRun(outcome string) {
	PipelineRunsTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		PipelineLastSuccessTimestamp.SetToCurrentTime()
	}
}

// RecordSimilarQuery records a similar-video lookup.
func RecordSimilarQuery(source string, duration time.Duration) {
	SimilarQueryDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCacheAccess records a cache hit or miss for a keyspace.
func RecordCacheAccess(keyspace string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(keyspace).Inc()
	} else {
		CacheMisses.WithLabelValues(keyspace).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
