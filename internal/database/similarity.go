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

// scoreUpdateBatchSize bounds the number of score rows updated per
// statement batch to keep individual statements small.
const scoreUpdateBatchSize = 1000

// PersistRunResults writes one pipeline run's output in a single
// transaction: vision score updates (batched) followed by a
// replace-all of the similarity edges. A crash mid-write leaves the
// previous run's edges intact.
func (db *DB) PersistRunResults(ctx context.Context, updates []models.ScoreUpdate, edges []models.SimilarityEdge) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("replace", "vision_similarity", time.Since(start), err)
	}()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist run: %w", err)
	}
	defer func() { rollbackOnErr(tx, err) }()

	updateStmt, err := tx.PrepareContext(ctx, `
		UPDATE visions
		SET engagement_score = ?, popularity_score = ?,
		    last_recommendation_update = CURRENT_TIMESTAMP
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare score update: %w", err)
	}
	defer updateStmt.Close()

	for i := 0; i < len(updates); i += scoreUpdateBatchSize {
		end := i + scoreUpdateBatchSize
		if end > len(updates) {
			end = len(updates)
		}
		for _, u := range updates[i:end] {
			if _, err = updateStmt.ExecContext(ctx, u.EngagementScore, u.PopularityScore, u.VisionID); err != nil {
				return fmt.Errorf("update scores for vision %d: %w", u.VisionID, err)
			}
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM vision_similarity`); err != nil {
		return fmt.Errorf("clear similarity edges: %w", err)
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vision_similarity
			(vision_id, similar_vision_id, similarity_score, engagement_boost, final_score)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range edges {
		if _, err = edgeStmt.ExecContext(ctx,
			e.VisionID, e.SimilarVisionID, e.SimilarityScore, e.EngagementBoost, e.FinalScore); err != nil {
			return fmt.Errorf("insert edge %d->%d: %w", e.VisionID, e.SimilarVisionID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit persist run: %w", err)
	}
	return nil
}

// GetSimilarByEdges returns the top-k persisted neighbors for a
// vision, ordered by final score. Edges are stored deduplicated by
// unordered pair, so both directions are considered.
func (db *DB) GetSimilarByEdges(ctx context.Context, visionID int64, k int) ([]models.SimilarVision, error) {
	start := time.Now()

	query := `
		SELECT CASE WHEN vision_id = ? THEN similar_vision_id ELSE vision_id END AS neighbor,
		       final_score
		FROM vision_similarity
		WHERE vision_id = ? OR similar_vision_id = ?
		ORDER BY final_score DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, visionID, visionID, visionID, k)
	if err != nil {
		metrics.RecordDBQuery("select", "vision_similarity", time.Since(start), err)
		return nil, fmt.Errorf("query similarity edges: %w", err)
	}
	defer rows.Close()

	var results []models.SimilarVision
	for rows.Next() {
		var sv models.SimilarVision
		if err := rows.Scan(&sv.VisionID, &sv.Score); err != nil {
			return nil, fmt.Errorf("scan similarity edge: %w", err)
		}
		results = append(results, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarity edges: %w", err)
	}

	metrics.RecordDBQuery("select", "vision_similarity", time.Since(start), nil)
	return results, nil
}

// CountSimilarityEdges returns the number of persisted edges. Used by
// the status endpoint and tests.
func (db *DB) CountSimilarityEdges(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM vision_similarity`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count similarity edges: %w", err)
	}
	return n, nil
}
