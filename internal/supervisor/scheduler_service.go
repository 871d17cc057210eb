// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/logging"
)

// Runner is one batch computation, satisfied by pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context) error
}

// SchedulerService triggers a batch run immediately on start and then
// on a fixed interval. Run failures are logged and the schedule keeps
// ticking; only context cancellation stops the service.
type SchedulerService struct {
	runner   Runner
	interval time.Duration
}

// NewSchedulerService creates a scheduler with the given interval.
func NewSchedulerService(runner Runner, interval time.Duration) *SchedulerService {
	return &SchedulerService{runner: runner, interval: interval}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SchedulerService) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := s.runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrRunInProgress):
		// Another instance holds the lease; the next tick retries.
	case errors.Is(err, context.Canceled):
	default:
		logging.Error().Err(err).Msg("Scheduled similarity run failed")
	}
}

func (s *SchedulerService) String() string { return "pipeline-scheduler" }
