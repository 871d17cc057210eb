// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

// Package main runs one batch similarity computation and exits.
//
// This is the cron-friendly alternative to the in-process scheduler in
// cmd/server. A run that is skipped because another instance holds the
// lease exits zero; infrastructure failures exit non-zero.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/kvcache"
	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Batch computation failed")
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
	})

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe := pipeline.New(db, cache, cfg.Pipeline, cfg.Serving.RunMarkerTTL)
	if err := pipe.Run(ctx); err != nil {
		if errors.Is(err, database.ErrRunInProgress) {
			logging.Warn().Msg("Another run holds the lease, nothing to do")
			return nil
		}
		return err
	}
	return nil
}
