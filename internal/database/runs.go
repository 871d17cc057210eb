// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/models"
)

// ErrRunInProgress is returned when another pipeline run holds the
// lease.
var ErrRunInProgress = errors.New("database: batch run already in progress")

// AcquireRunLease registers a new running batch_runs row, failing if a
// live run exists. Rows older than leaseTTL in the running state are
// treated as crashed and marked failed, so a dead process cannot block
// runs forever. DuckDB has no advisory locks; the lease row plays that
// role.
func (db *DB) AcquireRunLease(ctx context.Context, leaseTTL time.Duration) (runID string, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin acquire lease: %w", err)
	}
	defer func() { rollbackOnErr(tx, err) }()

	// Expire crashed runs.
	res, err := tx.ExecContext(ctx, `
		UPDATE batch_runs
		SET status = ?, finished_at = CURRENT_TIMESTAMP
		WHERE status = ? AND started_at < ?
	`, string(models.RunFailed), string(models.RunRunning), time.Now().Add(-leaseTTL))
	if err != nil {
		return "", fmt.Errorf("expire stale leases: %w", err)
	}
	if n, raErr := res.RowsAffected(); raErr == nil && n > 0 {
		logging.Warn().Int64("expired", n).Msg("Expired stale batch run leases")
	}

	var live int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM batch_runs WHERE status = ?`,
		string(models.RunRunning)).Scan(&live)
	if err != nil {
		return "", fmt.Errorf("check live runs: %w", err)
	}
	if live > 0 {
		err = ErrRunInProgress
		return "", err
	}

	runID = uuid.NewString()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO batch_runs (id, started_at, status)
		VALUES (?, CURRENT_TIMESTAMP, ?)
	`, runID, string(models.RunRunning)); err != nil {
		return "", fmt.Errorf("insert run lease: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit acquire lease: %w", err)
	}
	return runID, nil
}

// FinishRun releases the lease by recording the run's outcome.
func (db *DB) FinishRun(ctx context.Context, runID string, status models.RunStatus) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE batch_runs
		SET status = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(status), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// GetLastRun returns the most recently started batch run, or nil if
// no run has ever happened.
func (db *DB) GetLastRun(ctx context.Context) (*models.BatchRun, error) {
	var run models.BatchRun
	var finished sql.NullTime

	err := db.conn.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&run.ID, &run.StartedAt, &finished, &run.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}

	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
