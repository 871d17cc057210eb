// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/visionary/internal/ann"
	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/kvcache"
	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/metrics"
	"github.com/tomtom215/visionary/internal/models"
)

// Cache keys written by the pipeline and read by the serving path.
const (
	// CacheKeyIndex holds the serialized current ANN snapshot.
	CacheKeyIndex = "vision_similarity_ann_index"
	// CacheKeyLastUpdate marks the last successful run.
	CacheKeyLastUpdate = "vision_similarity_last_update"
)

// annSeed keeps forest construction reproducible across runs over
// identical embeddings.
const annSeed = 42

// Store is the persistence surface the pipeline requires.
// *database.DB satisfies it.
type Store interface {
	EventSource
	GetCatalog(ctx context.Context) ([]models.Vision, error)
	PersistRunResults(ctx context.Context, updates []models.ScoreUpdate, edges []models.SimilarityEdge) error
	InsertIndexSnapshot(ctx context.Context, snap *models.IndexSnapshot) error
	AcquireRunLease(ctx context.Context, leaseTTL time.Duration) (string, error)
	FinishRun(ctx context.Context, runID string, status models.RunStatus) error
}

// Pipeline runs the offline similarity computation end to end.
type Pipeline struct {
	store        Store
	cache        kvcache.Cache
	cfg          config.PipelineConfig
	runMarkerTTL time.Duration
}

// New creates a pipeline over the given store and cache.
func New(store Store, cache kvcache.Cache, cfg config.PipelineConfig, runMarkerTTL time.Duration) *Pipeline {
	return &Pipeline{
		store:        store,
		cache:        cache,
		cfg:          cfg,
		runMarkerTTL: runMarkerTTL,
	}
}

// Run executes one batch computation. Storage errors abort the run;
// data-quality problems degrade with warnings; an ANN build failure is
// tolerated (the serving path keeps using the previous index). A lease
// row keeps concurrent runs mutually exclusive.
func (p *Pipeline) Run(ctx context.Context) error {
	runID, err := p.store.AcquireRunLease(ctx, p.cfg.LeaseTTL)
	if errors.Is(err, database.ErrRunInProgress) {
		logging.Warn().Msg("Similarity run already in progress, skipping")
		metrics.RecordPipelineRun("skipped")
		return err
	}
	if err != nil {
		metrics.RecordPipelineRun("failure")
		return fmt.Errorf("acquire run lease: %w", err)
	}

	logging.Info().Str("run_id", runID).Msg("Starting similarity computation")

	if err := p.run(ctx); err != nil {
		metrics.RecordPipelineRun("failure")
		if finishErr := p.store.FinishRun(ctx, runID, models.RunFailed); finishErr != nil {
			logging.Error().Err(finishErr).Msg("Failed to record run failure")
		}
		return err
	}

	if err := p.store.FinishRun(ctx, runID, models.RunSucceeded); err != nil {
		metrics.RecordPipelineRun("failure")
		return fmt.Errorf("record run success: %w", err)
	}

	metrics.RecordPipelineRun("success")
	logging.Info().Str("run_id", runID).Msg("Similarity computation complete")
	return nil
}

//nolint:gocyclo // The pipeline is a linear sequence of steps; splitting it obscures the data flow
func (p *Pipeline) run(ctx context.Context) error {
	now := time.Now()

	catalog, err := p.store.GetCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if len(catalog) == 0 {
		logging.Warn().Msg("No visions to process")
		return nil
	}

	posByID := make(map[int64]int, len(catalog))
	for i := range catalog {
		posByID[catalog[i].ID] = i
	}
	allTags, tagIdx := collectTags(catalog)

	stepStart := time.Now()
	signals, err := CollectWatchSignals(ctx, p.store, posByID, p.cfg.WatchBatchSize, p.cfg.WatchWindowDays, now)
	if err != nil {
		return fmt.Errorf("collect watch signals: %w", err)
	}
	metrics.RecordPipelineStep("watch", time.Since(stepStart))

	stepStart = time.Now()
	cowatch := BuildCoWatchMatrix(signals, posByID, len(catalog), p.cfg.MaxWatchesPerUser)
	metrics.RecordPipelineStep("cowatch", time.Since(stepStart))

	stepStart = time.Now()
	features := BuildFeatureMatrix(catalog, allTags, tagIdx, cowatch, now)
	metrics.RecordPipelineStep("features", time.Since(stepStart))

	stepStart = time.Now()
	factors := ComputeItemFactors(ctx, signals, catalog, posByID, p.cfg)
	metrics.RecordPipelineStep("factorize", time.Since(stepStart))

	stepStart = time.Now()
	combined := FuseEmbeddings(features, factors, p.cfg.ContentWeight, p.cfg.BehaviorWeight)
	metrics.RecordPipelineStep("fuse", time.Since(stepStart))

	stepStart = time.Now()
	updates, edges := ComputeSimilarityEdges(combined, catalog, p.cfg.TopK)
	metrics.RecordPipelineStep("score", time.Since(stepStart))

	// Index build failure must not block score and edge persistence.
	stepStart = time.Now()
	if err := p.buildAndStoreIndex(ctx, combined, catalog); err != nil {
		logging.Warn().Err(err).Msg("ANN index build failed, keeping previous index")
	}
	metrics.RecordPipelineStep("index", time.Since(stepStart))

	if err := p.store.PersistRunResults(ctx, updates, edges); err != nil {
		return fmt.Errorf("persist run results: %w", err)
	}

	metrics.PipelineVisionsProcessed.Set(float64(len(catalog)))
	metrics.PipelineEdgesWritten.Set(float64(len(edges)))

	if err := p.cache.Set(ctx, CacheKeyLastUpdate,
		[]byte(now.UTC().Format(time.RFC3339)), p.runMarkerTTL); err != nil {
		logging.Warn().Err(err).Msg("Failed to write run marker to cache")
	}

	logging.Info().
		Int("visions", len(catalog)).
		Int("edges", len(edges)).
		Msg("Similarity results persisted")
	return nil
}

// buildAndStoreIndex builds the ANN forest over the combined embedding
// and commits it as the new current snapshot. The stale cached copy is
// dropped so the next read repopulates from the new snapshot.
func (p *Pipeline) buildAndStoreIndex(ctx context.Context, combined [][]float64, catalog []models.Vision) error {
	forest, err := ann.Build(combined, p.cfg.AnnTrees, annSeed)
	if err != nil {
		return fmt.Errorf("build forest: %w", err)
	}

	blob, err := ann.Encode(forest)
	if err != nil {
		return fmt.Errorf("encode forest: %w", err)
	}

	visionIDs := make([]int64, len(catalog))
	for i := range catalog {
		visionIDs[i] = catalog[i].ID
	}

	snap := &models.IndexSnapshot{
		Blob:       blob,
		VisionIDs:  visionIDs,
		VectorSize: forest.Dim,
	}
	if err := p.store.InsertIndexSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store index snapshot: %w", err)
	}

	if err := p.cache.Delete(ctx, CacheKeyIndex); err != nil {
		logging.Warn().Err(err).Msg("Failed to invalidate cached index")
	}

	logging.Info().
		Str("snapshot_id", snap.ID).
		Int("visions", len(visionIDs)).
		Int("dimensions", forest.Dim).
		Msg("ANN index snapshot committed")
	return nil
}

// collectTags gathers the distinct tag vocabulary over the catalog in
// sorted order, with a name-to-column lookup.
func collectTags(catalog []models.Vision) ([]string, map[string]int) {
	seen := make(map[string]bool)
	for i := range catalog {
		for _, tag := range catalog[i].Tags {
			seen[tag] = true
		}
	}

	allTags := make([]string, 0, len(seen))
	for tag := range seen {
		allTags = append(allTags, tag)
	}
	sort.Strings(allTags)

	tagIdx := make(map[string]int, len(allTags))
	for i, tag := range allTags {
		tagIdx[tag] = i
	}
	return allTags, tagIdx
}
