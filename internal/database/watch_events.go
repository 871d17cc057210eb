// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/visionary/internal/metrics"
	"github.com/tomtom215/visionary/internal/models"
)

// GetWatchEventsPage returns one page of watch events ordered
// newest-first. The pipeline depends on this ordering: the first
// event it sees for a (user, vision) pair is the most recent one.
func (db *DB) GetWatchEventsPage(ctx context.Context, limit, offset int) ([]models.WatchEvent, error) {
	start := time.Now()

	query := `
		SELECT user_id, vision_id, watched_at
		FROM watch_events
		ORDER BY watched_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		metrics.RecordDBQuery("select", "watch_events", time.Since(start), err)
		return nil, fmt.Errorf("query watch events: %w", err)
	}
	defer rows.Close()

	var events []models.WatchEvent
	for rows.Next() {
		var e models.WatchEvent
		if err := rows.Scan(&e.UserID, &e.VisionID, &e.WatchedAt); err != nil {
			return nil, fmt.Errorf("scan watch event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch events: %w", err)
	}

	metrics.RecordDBQuery("select", "watch_events", time.Since(start), nil)
	return events, nil
}

// RecordWatchEvent appends a playback event and bumps the vision's
// view counter in one transaction.
func (db *DB) RecordWatchEvent(ctx context.Context, userID, visionID int64) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record watch: %w", err)
	}
	defer func() { rollbackOnErr(tx, err) }()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO watch_events (user_id, vision_id, watched_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		userID, visionID); err != nil {
		return fmt.Errorf("insert watch event: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE visions SET views = views + 1 WHERE id = ?`, visionID)
	if err != nil {
		return fmt.Errorf("bump view count: %w", err)
	}
	if n, raErr := res.RowsAffected(); raErr == nil && n == 0 {
		err = ErrVisionNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit record watch: %w", err)
	}
	return nil
}
