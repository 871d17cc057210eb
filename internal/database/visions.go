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

	"github.com/tomtom215/visionary/internal/metrics"
	"github.com/tomtom215/visionary/internal/models"
)

// ErrVisionNotFound is returned when a vision ID does not exist.
var ErrVisionNotFound = errors.New("database: vision not found")

// GetCatalog returns all published visions (VOD and live) with their
// tags. This is the item universe for one pipeline run.
func (db *DB) GetCatalog(ctx context.Context) ([]models.Vision, error) {
	start := time.Now()

	query := `
		SELECT id, title, creator_id, status, views, likes, comment_count,
		       created_at, engagement_score, popularity_score,
		       last_recommendation_update
		FROM visions
		WHERE status IN ('vod', 'live')
		ORDER BY id
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		metrics.RecordDBQuery("select", "visions", time.Since(start), err)
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var visions []models.Vision
	byID := make(map[int64]int)
	for rows.Next() {
		v, err := scanVision(rows)
		if err != nil {
			return nil, err
		}
		byID[v.ID] = len(visions)
		visions = append(visions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}

	if err := db.attachTags(ctx, visions, byID); err != nil {
		return nil, err
	}

	metrics.RecordDBQuery("select", "visions", time.Since(start), nil)
	return visions, nil
}

// GetVision returns a single vision by ID, without tags.
func (db *DB) GetVision(ctx context.Context, id int64) (*models.Vision, error) {
	query := `
		SELECT id, title, creator_id, status, views, likes, comment_count,
		       created_at, engagement_score, popularity_score,
		       last_recommendation_update
		FROM visions
		WHERE id = ?
	`

	row := db.conn.QueryRowContext(ctx, query, id)
	v, err := scanVision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVisionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// attachTags populates the Tags field of each vision in place.
func (db *DB) attachTags(ctx context.Context, visions []models.Vision, byID map[int64]int) error {
	if len(visions) == 0 {
		return nil
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT vision_id, tag FROM vision_tags ORDER BY vision_id, tag`)
	if err != nil {
		return fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var visionID int64
		var tag string
		if err := rows.Scan(&visionID, &tag); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		if idx, ok := byID[visionID]; ok {
			visions[idx].Tags = append(visions[idx].Tags, tag)
		}
	}
	return rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVision(s scanner) (models.Vision, error) {
	var v models.Vision
	var lastUpdate sql.NullTime

	err := s.Scan(&v.ID, &v.Title, &v.CreatorID, &v.Status, &v.Views,
		&v.Likes, &v.CommentCount, &v.CreatedAt,
		&v.EngagementScore, &v.PopularityScore, &lastUpdate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, err
		}
		return v, fmt.Errorf("scan vision: %w", err)
	}

	if lastUpdate.Valid {
		t := lastUpdate.Time
		v.LastRecommendationUpdate = &t
	}
	return v, nil
}

// GetFeedCandidates returns the top published visions of one status,
// ordered by popularity then recency, capped at limit. These are the
// pre-interleave candidate pools for feed composition.
func (db *DB) GetFeedCandidates(ctx context.Context, status models.VisionStatus, limit int) ([]models.Vision, error) {
	start := time.Now()

	query := `
		SELECT id, title, creator_id, status, views, likes, comment_count,
		       created_at, engagement_score, popularity_score,
		       last_recommendation_update
		FROM visions
		WHERE status = ?
		ORDER BY popularity_score DESC, created_at DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		metrics.RecordDBQuery("select", "visions", time.Since(start), err)
		return nil, fmt.Errorf("query feed candidates: %w", err)
	}
	defer rows.Close()

	var visions []models.Vision
	for rows.Next() {
		v, err := scanVision(rows)
		if err != nil {
			return nil, err
		}
		visions = append(visions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed candidates: %w", err)
	}

	metrics.RecordDBQuery("select", "visions", time.Since(start), nil)
	return visions, nil
}

// GetTrendingCandidates returns visions created within the last
// windowDays, ranked by engagement score decayed by age in days.
func (db *DB) GetTrendingCandidates(ctx context.Context, windowDays, limit int) ([]models.Vision, error) {
	start := time.Now()

	query := `
		SELECT id, title, creator_id, status, views, likes, comment_count,
		       created_at, engagement_score, popularity_score,
		       last_recommendation_update
		FROM visions
		WHERE status IN ('vod', 'live')
		  AND created_at >= CURRENT_TIMESTAMP - to_days(?)
		ORDER BY engagement_score / GREATEST(date_diff('day', created_at, CURRENT_TIMESTAMP), 1) DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, windowDays, limit)
	if err != nil {
		metrics.RecordDBQuery("select", "visions", time.Since(start), err)
		return nil, fmt.Errorf("query trending candidates: %w", err)
	}
	defer rows.Close()

	var visions []models.Vision
	for rows.Next() {
		v, err := scanVision(rows)
		if err != nil {
			return nil, err
		}
		visions = append(visions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trending candidates: %w", err)
	}

	metrics.RecordDBQuery("select", "visions", time.Since(start), nil)
	return visions, nil
}

// InsertVision adds a vision and its tags, returning the assigned ID.
func (db *DB) InsertVision(ctx context.Context, v *models.Vision) (id int64, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert vision: %w", err)
	}
	defer func() { rollbackOnErr(tx, err) }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO visions (title, creator_id, status, views, likes, comment_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, v.Title, v.CreatorID, string(v.Status), v.Views, v.Likes, v.CommentCount, v.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert vision: %w", err)
	}

	for _, tag := range v.Tags {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO vision_tags (vision_id, tag) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			id, tag); err != nil {
			return 0, fmt.Errorf("insert vision tag: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert vision: %w", err)
	}
	return id, nil
}
