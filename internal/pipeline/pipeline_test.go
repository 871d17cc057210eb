// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/kvcache"
	"github.com/tomtom215/visionary/internal/models"
)

// fakeStore is an in-memory Store for orchestrator tests.
type fakeStore struct {
	catalog []models.Vision
	events  []models.WatchEvent

	leaseErr   error
	persistErr error

	persistedUpdates []models.ScoreUpdate
	persistedEdges   []models.SimilarityEdge
	snapshots        []*models.IndexSnapshot
	finishedStatus   models.RunStatus
	finishedCalls    int
}

func (f *fakeStore) GetCatalog(_ context.Context) ([]models.Vision, error) {
	return f.catalog, nil
}

func (f *fakeStore) GetWatchEventsPage(_ context.Context, limit, offset int) ([]models.WatchEvent, error) {
	if offset >= len(f.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.events) {
		end = len(f.events)
	}
	return f.events[offset:end], nil
}

func (f *fakeStore) PersistRunResults(_ context.Context, updates []models.ScoreUpdate, edges []models.SimilarityEdge) error {
	if f.persistErr != nil {
		return f.persistErr
	}
	f.persistedUpdates = updates
	f.persistedEdges = edges
	return nil
}

func (f *fakeStore) InsertIndexSnapshot(_ context.Context, snap *models.IndexSnapshot) error {
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeStore) AcquireRunLease(_ context.Context, _ time.Duration) (string, error) {
	if f.leaseErr != nil {
		return "", f.leaseErr
	}
	return "test-run", nil
}

func (f *fakeStore) FinishRun(_ context.Context, _ string, status models.RunStatus) error {
	f.finishedStatus = status
	f.finishedCalls++
	return nil
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		WatchBatchSize:  100,
		WatchWindowDays: 30,
		Factors:         8,
		Iterations:      3,
		Regularization:  0.1,
		Alpha:           40.0,
		NumWorkers:      2,
		BehaviorWeight:  0.3,
		ContentWeight:   0.7,
		TopK:            5,
		AnnTrees:        4,
		LeaseTTL:        time.Hour,
	}
}

func testCatalog(now time.Time) []models.Vision {
	visions := make([]models.Vision, 6)
	for i := range visions {
		visions[i] = models.Vision{
			ID:           int64(i + 1),
			Title:        "vision",
			Status:       models.StatusVOD,
			Views:        int64(100 * (i + 1)),
			Likes:        int64(10 * (i + 1)),
			CommentCount: int64(i),
			CreatedAt:    now.AddDate(0, 0, -i),
			Tags:         []string{"demo"},
		}
	}
	return visions
}

func TestPipelineRunEndToEnd(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		catalog: testCatalog(now),
		events: []models.WatchEvent{
			{UserID: 1, VisionID: 1, WatchedAt: now.Add(-time.Hour)},
			{UserID: 1, VisionID: 2, WatchedAt: now.Add(-2 * time.Hour)},
			{UserID: 2, VisionID: 1, WatchedAt: now.Add(-time.Hour)},
			{UserID: 2, VisionID: 2, WatchedAt: now.Add(-3 * time.Hour)},
		},
	}
	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	p := New(store, cache, testPipelineConfig(), time.Hour)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(store.persistedUpdates) != 6 {
		t.Errorf("score updates = %d, want one per vision", len(store.persistedUpdates))
	}
	if len(store.persistedEdges) == 0 {
		t.Error("no similarity edges persisted")
	}
	if len(store.snapshots) != 1 {
		t.Fatalf("index snapshots = %d, want 1", len(store.snapshots))
	}
	snap := store.snapshots[0]
	if len(snap.VisionIDs) != 6 || len(snap.Blob) == 0 {
		t.Errorf("snapshot incomplete: %d ids, %d blob bytes", len(snap.VisionIDs), len(snap.Blob))
	}
	if store.finishedStatus != models.RunSucceeded {
		t.Errorf("run status = %q, want succeeded", store.finishedStatus)
	}

	if _, err := cache.Get(context.Background(), CacheKeyLastUpdate); err != nil {
		t.Errorf("run marker not written to cache: %v", err)
	}
}

func TestPipelineRunEmptyCatalog(t *testing.T) {
	store := &fakeStore{}
	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	p := New(store, cache, testPipelineConfig(), time.Hour)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run with empty catalog failed: %v", err)
	}
	if store.finishedStatus != models.RunSucceeded {
		t.Errorf("run status = %q, want succeeded", store.finishedStatus)
	}
	if len(store.snapshots) != 0 {
		t.Error("index built from empty catalog")
	}
}

func TestPipelineRunLeaseHeld(t *testing.T) {
	store := &fakeStore{leaseErr: database.ErrRunInProgress}
	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	p := New(store, cache, testPipelineConfig(), time.Hour)
	err := p.Run(context.Background())
	if !errors.Is(err, database.ErrRunInProgress) {
		t.Fatalf("Run with held lease = %v, want ErrRunInProgress", err)
	}
	if store.finishedCalls != 0 {
		t.Error("FinishRun called for a skipped run")
	}
}

func TestPipelineRunPersistFailure(t *testing.T) {
	now := time.Now()
	store := &fakeStore{
		catalog:    testCatalog(now),
		persistErr: errors.New("disk full"),
	}
	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	p := New(store, cache, testPipelineConfig(), time.Hour)
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("Run with failing persist succeeded, want error")
	}
	if store.finishedStatus != models.RunFailed {
		t.Errorf("run status = %q, want failed", store.finishedStatus)
	}
}

func TestPipelineRunNoWatchEvents(t *testing.T) {
	// A catalog with no watch history still produces scores and an
	// index via the factorization fallback.
	now := time.Now()
	store := &fakeStore{catalog: testCatalog(now)}
	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	p := New(store, cache, testPipelineConfig(), time.Hour)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run without events failed: %v", err)
	}
	if len(store.persistedUpdates) != 6 {
		t.Errorf("score updates = %d, want 6", len(store.persistedUpdates))
	}
	if len(store.snapshots) != 1 {
		t.Errorf("snapshots = %d, want 1", len(store.snapshots))
	}
}
