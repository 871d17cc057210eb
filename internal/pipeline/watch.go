// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

// Package pipeline implements the offline similarity pipeline: watch
// signal collection, co-watch counting, content features, implicit
// factorization, embedding fusion and similarity scoring.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/models"
)

// WatchRecord is the retained signal for one (user, vision) pair: the
// most recent watch time and its recency weight.
type WatchRecord struct {
	WatchedAt time.Time
	Weight    float64
}

// WatchSignals maps user ID to the visions they watched.
type WatchSignals map[int64]map[int64]WatchRecord

// EventSource is the paged watch event reader the collector consumes.
// Pages must be ordered newest-first; the collector's first-write-wins
// rule depends on it.
type EventSource interface {
	GetWatchEventsPage(ctx context.Context, limit, offset int) ([]models.WatchEvent, error)
}

// RecencyWeight computes the linear decay for an event age: 1.0 for
// same-day, 0 at windowDays and beyond.
func RecencyWeight(watchedAt, now time.Time, windowDays int) float64 {
	if windowDays < 1 {
		windowDays = 1
	}
	days := int(now.Sub(watchedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	if days > windowDays {
		days = windowDays
	}
	return float64(windowDays-days) / float64(windowDays)
}

// CollectWatchSignals pages through all watch events newest-first and
// keeps the most recent watch per (user, vision) pair. Events for
// visions outside the known set are dropped silently: the catalog was
// already filtered by status.
func CollectWatchSignals(ctx context.Context, src EventSource, known map[int64]int, batchSize, windowDays int, now time.Time) (WatchSignals, error) {
	signals := make(WatchSignals)
	offset := 0
	total := 0

	for {
		batch, err := src.GetWatchEventsPage(ctx, batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("read watch events at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, e := range batch {
			if _, ok := known[e.VisionID]; !ok {
				continue
			}
			userWatches := signals[e.UserID]
			if userWatches == nil {
				userWatches = make(map[int64]WatchRecord)
				signals[e.UserID] = userWatches
			}
			// Pages arrive newest-first, so the first event seen for a
			// pair is the latest watch.
			if _, seen := userWatches[e.VisionID]; seen {
				continue
			}
			userWatches[e.VisionID] = WatchRecord{
				WatchedAt: e.WatchedAt,
				Weight:    RecencyWeight(e.WatchedAt, now, windowDays),
			}
		}

		total += len(batch)
		offset += batchSize
		logging.Debug().Int("processed", total).Msg("Collected watch event page")
	}

	logging.Info().
		Int("events", total).
		Int("users", len(signals)).
		Msg("Watch signal collection complete")
	return signals, nil
}
