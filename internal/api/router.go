// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/metrics"
)

// Router wires handlers into the HTTP route tree.
type Router struct {
	handler *Handler
	cfg     config.ServerConfig
}

// NewRouter creates a Router for the given handler and server config.
func NewRouter(handler *Handler, cfg config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup builds the chi route tree with the global middleware stack.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			rt.cfg.RateLimitReqs,
			rt.cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(rateLimitExceeded),
		))
		r.Use(prometheusMetrics)

		r.Get("/health", rt.handler.Health)
		r.Get("/status", rt.handler.Status)

		r.Get("/visions/{id}/similar", rt.handler.Similar)
		r.Get("/feed", rt.handler.Feed)
		r.Get("/trending", rt.handler.Trending)

		r.Post("/watch", rt.handler.RecordWatch)
		r.Post("/subscriptions", rt.handler.Subscribe)
		r.Delete("/subscriptions", rt.handler.Unsubscribe)
	})

	return r
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests,
		"rate limit exceeded", nil)
}

// prometheusMetrics records request counts and latency per route
// pattern. Patterns rather than raw paths keep label cardinality
// bounded.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordAPIRequest(r.Method, pattern,
			strconv.Itoa(ww.Status()), time.Since(start))
	})
}
