// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package database

import (
	"context"
	"fmt"
)

// GetSubscribedCreators returns the set of creator IDs the user
// subscribes to. Used for the feed's subscription boost.
func (db *DB) GetSubscribedCreators(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT creator_id FROM subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	creators := make(map[int64]bool)
	for rows.Next() {
		var creatorID int64
		if err := rows.Scan(&creatorID); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		creators[creatorID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return creators, nil
}

// Subscribe records a user-to-creator subscription. Idempotent.
func (db *DB) Subscribe(ctx context.Context, userID, creatorID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, creator_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, userID, creatorID)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Unsubscribe removes a subscription if present.
func (db *DB) Unsubscribe(ctx context.Context, userID, creatorID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND creator_id = ?`, userID, creatorID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
