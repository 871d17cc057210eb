// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

// Package main is the entry point for the Visionary server.
//
// The server hosts the recommendation API and the batch similarity
// pipeline in one process. Startup order:
//
//  1. Configuration: layered via koanf v2 (defaults, config.yaml,
//     VISIONARY_* environment variables)
//  2. Logging: global zerolog logger
//  3. Database: DuckDB catalog, watch events, similarity edges and
//     index snapshots
//  4. Cache: badger, redis or in-memory, per VISIONARY_CACHE_BACKEND
//  5. Supervisor tree: the pipeline scheduler and the HTTP server run
//     in separate suture layers so a batch failure never takes the
//     API down
//
// The process shuts down gracefully on SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/visionary/internal/api"
	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/kvcache"
	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/pipeline"
	"github.com/tomtom215/visionary/internal/serve"
	"github.com/tomtom215/visionary/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: loggingOutput(cfg.Logging.Output),
	})
	logging.Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Str("cache_backend", cfg.Cache.Backend).
		Msg("Starting Visionary server")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	cache, err := kvcache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close cache")
		}
	}()

	pipe := pipeline.New(db, cache, cfg.Pipeline, cfg.Serving.RunMarkerTTL)
	recommender := serve.New(db, cache, cfg.Serving)

	router := api.NewRouter(api.NewHandler(db, recommender), cfg.Server)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddPipelineService(supervisor.NewSchedulerService(pipe, cfg.Pipeline.Interval))
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logging.Info().Msg("Server stopped")
	return nil
}

func loggingOutput(name string) *os.File {
	if name == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}
