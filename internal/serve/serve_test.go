// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package serve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/visionary/internal/ann"
	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/kvcache"
	"github.com/tomtom215/visionary/internal/models"
)

type fakeStore struct {
	visions  map[int64]*models.Vision
	snapshot *models.IndexSnapshot
	snapErr  error
	edges    map[int64][]models.SimilarVision
	edgesErr error

	live     []models.Vision
	vod      []models.Vision
	trending []models.Vision
	subs     map[int64]bool

	snapshotLoads int
	feedLoads     int
}

func (f *fakeStore) GetVision(_ context.Context, id int64) (*models.Vision, error) {
	v, ok := f.visions[id]
	if !ok {
		return nil, database.ErrVisionNotFound
	}
	return v, nil
}

func (f *fakeStore) GetCurrentIndexSnapshot(_ context.Context) (*models.IndexSnapshot, error) {
	f.snapshotLoads++
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	return f.snapshot, nil
}

func (f *fakeStore) GetSimilarByEdges(_ context.Context, visionID int64, k int) ([]models.SimilarVision, error) {
	if f.edgesErr != nil {
		return nil, f.edgesErr
	}
	res := f.edges[visionID]
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

func (f *fakeStore) GetFeedCandidates(_ context.Context, status models.VisionStatus, limit int) ([]models.Vision, error) {
	f.feedLoads++
	if status == models.StatusLive {
		return f.live, nil
	}
	return f.vod, nil
}

func (f *fakeStore) GetTrendingCandidates(_ context.Context, _, _ int) ([]models.Vision, error) {
	return f.trending, nil
}

func (f *fakeStore) GetSubscribedCreators(_ context.Context, _ int64) (map[int64]bool, error) {
	return f.subs, nil
}

func testServingConfig() config.ServingConfig {
	return config.ServingConfig{
		IndexCacheTTL:     12 * time.Hour,
		RunMarkerTTL:      time.Hour,
		FeedCacheTTL:      50 * time.Second,
		TrendingCacheTTL:  5 * time.Minute,
		FeedSize:           10,
		FeedPageSize:       10,
		MaxLiveRatio:       0.4,
		LiveCandidateLimit: 30,
		VodCandidateLimit:  60,
		SubscriptionBonus:  30,
	}
}

// indexedStore builds a real forest over two clusters of visions and
// wraps it in a snapshot, so index queries run the full decode path.
func indexedStore(t *testing.T) *fakeStore {
	t.Helper()

	vectors := [][]float64{
		{1, 0.1, 0}, // vision 1
		{1, 0.2, 0}, // vision 2
		{0, 0.1, 1}, // vision 3
		{0, 0.2, 1}, // vision 4
	}
	forest, err := ann.Build(vectors, 4, 1)
	if err != nil {
		t.Fatalf("ann.Build failed: %v", err)
	}
	blob, err := ann.Encode(forest)
	if err != nil {
		t.Fatalf("ann.Encode failed: %v", err)
	}

	visions := make(map[int64]*models.Vision, 4)
	for id := int64(1); id <= 4; id++ {
		visions[id] = &models.Vision{ID: id, Status: models.StatusVOD, CreatedAt: time.Now()}
	}

	return &fakeStore{
		visions: visions,
		snapshot: &models.IndexSnapshot{
			ID:         "snap-1",
			Blob:       blob,
			VisionIDs:  []int64{1, 2, 3, 4},
			VectorSize: 3,
			CreatedAt:  time.Now(),
			IsCurrent:  true,
		},
		edges: map[int64][]models.SimilarVision{},
	}
}

func TestSimilarVisionsFromIndex(t *testing.T) {
	store := indexedStore(t)
	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())

	results, source, err := svc.SimilarVisions(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("SimilarVisions failed: %v", err)
	}
	if source != models.SourceIndex {
		t.Errorf("source = %q, want index", source)
	}
	if len(results) == 0 || len(results) > 2 {
		t.Fatalf("results = %d, want 1..2", len(results))
	}
	if results[0].VisionID != 2 {
		t.Errorf("nearest neighbor = %d, want same-cluster vision 2", results[0].VisionID)
	}
	for _, r := range results {
		if r.VisionID == 1 {
			t.Error("query vision returned as its own neighbor")
		}
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %v outside [0,1]", r.Score)
		}
	}
}

func TestSimilarVisionsReusesCachedIndex(t *testing.T) {
	store := indexedStore(t)
	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.SimilarVisions(ctx, 1, 2); err != nil {
			t.Fatalf("query %d failed: %v", i, err)
		}
	}
	if store.snapshotLoads != 1 {
		t.Errorf("snapshot loads = %d, want 1 (cache should absorb repeats)", store.snapshotLoads)
	}
}

func TestSimilarVisionsFallsBackWithoutIndex(t *testing.T) {
	store := indexedStore(t)
	store.snapshot = nil
	store.snapErr = database.ErrNoCurrentIndex
	store.edges[1] = []models.SimilarVision{{VisionID: 2, Score: 0.9}}

	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())

	results, source, err := svc.SimilarVisions(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("SimilarVisions failed: %v", err)
	}
	if source != models.SourceEdges {
		t.Errorf("source = %q, want edges fallback", source)
	}
	if len(results) != 1 || results[0].VisionID != 2 {
		t.Errorf("results = %v, want persisted edge to vision 2", results)
	}
}

func TestSimilarVisionsFallsBackForUnindexedVision(t *testing.T) {
	store := indexedStore(t)
	// Vision 99 exists but postdates the snapshot.
	store.visions[99] = &models.Vision{ID: 99, Status: models.StatusVOD, CreatedAt: time.Now()}
	store.edges[99] = []models.SimilarVision{{VisionID: 3, Score: 0.4}}

	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())

	results, source, err := svc.SimilarVisions(context.Background(), 99, 5)
	if err != nil {
		t.Fatalf("SimilarVisions failed: %v", err)
	}
	if source != models.SourceEdges {
		t.Errorf("source = %q, want edges fallback for unindexed vision", source)
	}
	if len(results) != 1 || results[0].VisionID != 3 {
		t.Errorf("results = %v, want edge to vision 3", results)
	}
}

func TestSimilarVisionsUnknownVision(t *testing.T) {
	store := indexedStore(t)
	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())

	_, _, err := svc.SimilarVisions(context.Background(), 12345, 5)
	if !errors.Is(err, database.ErrVisionNotFound) {
		t.Fatalf("err = %v, want ErrVisionNotFound", err)
	}
}

func feedVision(id, creatorID, likes int64, status models.VisionStatus, age time.Duration) models.Vision {
	return models.Vision{
		ID:        id,
		CreatorID: creatorID,
		Status:    status,
		Likes:     likes,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestRecommendedFeedInterleavesWithLiveCap(t *testing.T) {
	store := indexedStore(t)
	for i := int64(1); i <= 8; i++ {
		store.live = append(store.live, feedVision(100+i, 1, i, models.StatusLive, time.Hour))
	}
	for i := int64(1); i <= 10; i++ {
		store.vod = append(store.vod, feedVision(200+i, 2, i, models.StatusVOD, 48*time.Hour))
	}

	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())

	entries, cached, err := svc.RecommendedFeed(context.Background(), 7, models.FilterAll, 0)
	if err != nil {
		t.Fatalf("RecommendedFeed failed: %v", err)
	}
	if cached {
		t.Error("first composition reported as cached")
	}
	if len(entries) != 10 {
		t.Fatalf("entries = %d, want full page of 10", len(entries))
	}

	liveCount := 0
	for _, e := range entries {
		if e.IsLive {
			liveCount++
		}
	}
	// Every third slot, bounded by the 40% quota: slots 2, 5, 8.
	if liveCount != 3 {
		t.Errorf("live entries = %d, want 3", liveCount)
	}
	// Every third slot holds a live entry while quota lasts.
	for _, slot := range []int{2, 5, 8} {
		if !entries[slot].IsLive {
			t.Errorf("slot %d is not live", slot)
		}
	}
}

func TestRecommendedFeedCachesPage(t *testing.T) {
	store := indexedStore(t)
	store.vod = []models.Vision{feedVision(201, 2, 5, models.StatusVOD, time.Hour)}

	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())
	ctx := context.Background()

	if _, cached, err := svc.RecommendedFeed(ctx, 7, models.FilterVOD, 0); err != nil || cached {
		t.Fatalf("first call: cached=%v err=%v", cached, err)
	}
	loadsAfterFirst := store.feedLoads

	entries, cached, err := svc.RecommendedFeed(ctx, 7, models.FilterVOD, 0)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if !cached {
		t.Error("second call not served from cache")
	}
	if store.feedLoads != loadsAfterFirst {
		t.Error("cached call still hit the store")
	}
	if len(entries) != 1 || entries[0].Vision.ID != 201 {
		t.Errorf("cached entries = %v, want vision 201", entries)
	}
}

func TestRecommendedFeedSubscriptionBonus(t *testing.T) {
	store := indexedStore(t)
	// Identical stats; only creator 5 is subscribed.
	store.vod = []models.Vision{
		feedVision(201, 4, 5, models.StatusVOD, time.Hour),
		feedVision(202, 5, 5, models.StatusVOD, time.Hour),
	}
	store.subs = map[int64]bool{5: true}

	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())

	entries, _, err := svc.RecommendedFeed(context.Background(), 7, models.FilterVOD, 0)
	if err != nil {
		t.Fatalf("RecommendedFeed failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Vision.ID != 202 {
		t.Errorf("top entry = %d, want subscribed creator's vision 202", entries[0].Vision.ID)
	}
	if diff := entries[0].Score - entries[1].Score; diff < 29.9 || diff > 30.1 {
		t.Errorf("score gap = %v, want subscription bonus of 30", diff)
	}
}

func TestScoreCandidatesRanksByEngagement(t *testing.T) {
	svc := New(&fakeStore{}, kvcache.NewMemoryCache(), testServingConfig())

	candidates := []models.Vision{
		feedVision(1, 9, 10, models.StatusVOD, 48*time.Hour),
		feedVision(2, 9, 1000, models.StatusVOD, 48*time.Hour),
	}
	entries := svc.scoreCandidates(candidates, nil, time.Now(), false)

	if entries[0].Vision.ID != 2 {
		t.Fatalf("top entry = %d, want the 1000-like vision", entries[0].Vision.ID)
	}
	if entries[0].Score <= entries[1].Score {
		t.Errorf("scores %v <= %v, want strictly engagement-ordered",
			entries[0].Score, entries[1].Score)
	}
	// 10*likes + freshness 10/2 for a two-day-old VOD.
	if want := 10000.0 + 5.0; entries[0].Score != want {
		t.Errorf("score = %v, want %v", entries[0].Score, want)
	}
}

func TestRecommendedFeedPaginates(t *testing.T) {
	store := indexedStore(t)
	for i := int64(1); i <= 12; i++ {
		store.vod = append(store.vod, feedVision(200+i, 2, 100-i, models.StatusVOD, 48*time.Hour))
	}

	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	cfg := testServingConfig()
	cfg.FeedSize = 10
	cfg.FeedPageSize = 4
	svc := New(store, cache, cfg)
	ctx := context.Background()

	page0, _, err := svc.RecommendedFeed(ctx, 7, models.FilterVOD, 0)
	if err != nil {
		t.Fatalf("page 0 failed: %v", err)
	}
	page1, _, err := svc.RecommendedFeed(ctx, 7, models.FilterVOD, 1)
	if err != nil {
		t.Fatalf("page 1 failed: %v", err)
	}
	page2, _, err := svc.RecommendedFeed(ctx, 7, models.FilterVOD, 2)
	if err != nil {
		t.Fatalf("page 2 failed: %v", err)
	}

	if len(page0) != 4 || len(page1) != 4 || len(page2) != 2 {
		t.Fatalf("page lengths = %d/%d/%d, want 4/4/2 over a 10-entry feed",
			len(page0), len(page1), len(page2))
	}
	// Pages continue the ranking, they do not repeat it.
	if page1[0].Vision.ID == page0[0].Vision.ID {
		t.Error("page 1 repeats page 0")
	}
	if page1[0].Score > page0[len(page0)-1].Score {
		t.Error("page 1 outranks the tail of page 0")
	}
}

func TestTrendingVisionsFilterAndCache(t *testing.T) {
	store := indexedStore(t)
	store.trending = []models.Vision{
		{ID: 1, Status: models.StatusVOD, EngagementScore: 0.4, CreatedAt: time.Now().Add(-24 * time.Hour)},
		{ID: 2, Status: models.StatusLive, EngagementScore: 0.3, CreatedAt: time.Now().Add(-2 * time.Hour)},
	}

	cache := kvcache.NewMemoryCache()
	defer cache.Close()

	svc := New(store, cache, testServingConfig())
	ctx := context.Background()

	entries, cached, err := svc.TrendingVisions(ctx, models.FilterLive, 0)
	if err != nil {
		t.Fatalf("TrendingVisions failed: %v", err)
	}
	if cached {
		t.Error("first call reported as cached")
	}
	if len(entries) != 1 || entries[0].Vision.ID != 2 {
		t.Fatalf("entries = %v, want only the live vision", entries)
	}

	if _, cached, err = svc.TrendingVisions(ctx, models.FilterLive, 0); err != nil || !cached {
		t.Errorf("second call: cached=%v err=%v, want cache hit", cached, err)
	}
}

func TestPageSlice(t *testing.T) {
	entries := make([]models.FeedEntry, 7)
	for i := range entries {
		entries[i].Vision.ID = int64(i)
	}

	if got := pageSlice(entries, 0, 5); len(got) != 5 {
		t.Errorf("page 0 = %d entries, want 5", len(got))
	}
	if got := pageSlice(entries, 1, 5); len(got) != 2 {
		t.Errorf("page 1 = %d entries, want 2", len(got))
	}
	if got := pageSlice(entries, 2, 5); len(got) != 0 {
		t.Errorf("page 2 = %d entries, want 0", len(got))
	}
	if got := pageSlice(entries, -1, 5); got != nil {
		t.Errorf("negative page = %v, want nil", got)
	}
}
