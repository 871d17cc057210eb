// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// tableCreationQueries returns the table creation SQL statements.
func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS visions_id_seq START 1`,

		// Catalog. engagement_score/popularity_score are written back by
		// the batch pipeline; everything else is live counter state.
		`CREATE TABLE IF NOT EXISTS visions (
			id BIGINT PRIMARY KEY DEFAULT nextval('visions_id_seq'),
			title TEXT NOT NULL,
			creator_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			views BIGINT NOT NULL DEFAULT 0,
			likes BIGINT NOT NULL DEFAULT 0,
			comment_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			engagement_score DOUBLE NOT NULL DEFAULT 0,
			popularity_score DOUBLE NOT NULL DEFAULT 0,
			last_recommendation_update TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS vision_tags (
			vision_id BIGINT NOT NULL,
			tag TEXT NOT NULL,
			UNIQUE (vision_id, tag)
		)`,

		`CREATE TABLE IF NOT EXISTS watch_events (
			user_id BIGINT NOT NULL,
			vision_id BIGINT NOT NULL,
			watched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Replace-all per batch run. Unique on the ordered pair; the
		// pipeline deduplicates unordered pairs before writing.
		`CREATE TABLE IF NOT EXISTS vision_similarity (
			vision_id BIGINT NOT NULL,
			similar_vision_id BIGINT NOT NULL,
			similarity_score DOUBLE NOT NULL,
			engagement_boost DOUBLE NOT NULL DEFAULT 0,
			final_score DOUBLE NOT NULL,
			UNIQUE (vision_id, similar_vision_id)
		)`,

		// Append-only index snapshots. Exactly one row has
		// is_current=true; the cutover transaction maintains this.
		// vision_ids is a JSON array mapping index position to vision ID.
		`CREATE TABLE IF NOT EXISTS ann_index (
			id UUID PRIMARY KEY,
			index_blob BLOB NOT NULL,
			vision_ids TEXT NOT NULL,
			vector_size INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_current BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			user_id BIGINT NOT NULL,
			creator_id BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, creator_id)
		)`,

		// Audit log for pipeline runs; a row in the running state also
		// serves as the mutual-exclusion lease.
		`CREATE TABLE IF NOT EXISTS batch_runs (
			id UUID PRIMARY KEY,
			started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at TIMESTAMP,
			status TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_watch_events_watched_at
			ON watch_events (watched_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_vision_similarity_source
			ON vision_similarity (vision_id)`,
		`CREATE INDEX IF NOT EXISTS idx_visions_status
			ON visions (status)`,
	}
}
