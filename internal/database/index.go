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

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/visionary/internal/metrics"
	"github.com/tomtom215/visionary/internal/models"
)

// ErrNoCurrentIndex is returned when no ANN index snapshot is marked
// current (i.e. the pipeline has never completed an index build).
var ErrNoCurrentIndex = errors.New("database: no current ann index")

// InsertIndexSnapshot persists a new ANN index version and cuts over
// to it in one transaction: the previous current row is demoted and
// the new row inserted with is_current=true. Readers never observe
// zero or two current rows.
func (db *DB) InsertIndexSnapshot(ctx context.Context, snap *models.IndexSnapshot) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("insert", "ann_index", time.Since(start), err)
	}()

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}

	idsJSON, err := json.Marshal(snap.VisionIDs)
	if err != nil {
		return fmt.Errorf("marshal vision ids: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index cutover: %w", err)
	}
	defer func() { rollbackOnErr(tx, err) }()

	if _, err = tx.ExecContext(ctx,
		`UPDATE ann_index SET is_current = FALSE WHERE is_current = TRUE`); err != nil {
		return fmt.Errorf("demote current index: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO ann_index (id, index_blob, vision_ids, vector_size, created_at, is_current)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, TRUE)
	`, snap.ID, snap.Blob, string(idsJSON), snap.VectorSize); err != nil {
		return fmt.Errorf("insert index snapshot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit index cutover: %w", err)
	}
	return nil
}

// GetCurrentIndexSnapshot loads the snapshot marked current.
func (db *DB) GetCurrentIndexSnapshot(ctx context.Context) (*models.IndexSnapshot, error) {
	start := time.Now()

	query := `
		SELECT id, index_blob, vision_ids, vector_size, created_at
		FROM ann_index
		WHERE is_current = TRUE
	`

	var snap models.IndexSnapshot
	var idsJSON string
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&snap.ID, &snap.Blob, &idsJSON, &snap.VectorSize, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("select", "ann_index", time.Since(start), nil)
		return nil, ErrNoCurrentIndex
	}
	if err != nil {
		metrics.RecordDBQuery("select", "ann_index", time.Since(start), err)
		return nil, fmt.Errorf("query current index: %w", err)
	}

	if err := json.Unmarshal([]byte(idsJSON), &snap.VisionIDs); err != nil {
		return nil, fmt.Errorf("unmarshal vision ids: %w", err)
	}
	snap.IsCurrent = true

	metrics.RecordDBQuery("select", "ann_index", time.Since(start), nil)
	return &snap, nil
}

// CountCurrentIndexes returns how many snapshots claim to be current.
// Anything other than 0 or 1 indicates a broken cutover.
func (db *DB) CountCurrentIndexes(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ann_index WHERE is_current = TRUE`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count current indexes: %w", err)
	}
	return n, nil
}
