// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

// Package serve implements the read path: similar-vision lookups
// against the current ANN index with a persisted-edge fallback, and
// cached feed and trending composition.
package serve

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/visionary/internal/ann"
	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/kvcache"
	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/metrics"
	"github.com/tomtom215/visionary/internal/models"
	"github.com/tomtom215/visionary/internal/pipeline"
)

// Store is the persistence surface the serving path reads from.
type Store interface {
	GetVision(ctx context.Context, id int64) (*models.Vision, error)
	GetCurrentIndexSnapshot(ctx context.Context) (*models.IndexSnapshot, error)
	GetSimilarByEdges(ctx context.Context, visionID int64, k int) ([]models.SimilarVision, error)
	GetFeedCandidates(ctx context.Context, status models.VisionStatus, limit int) ([]models.Vision, error)
	GetTrendingCandidates(ctx context.Context, windowDays, limit int) ([]models.Vision, error)
	GetSubscribedCreators(ctx context.Context, userID int64) (map[int64]bool, error)
}

// indexHandle is a decoded ANN forest with its position mapping.
// Handles are immutable once built and shared across requests.
type indexHandle struct {
	forest    *ann.Forest
	visionIDs []int64
	posByID   map[int64]int
	sum       [sha256.Size]byte
}

// Service answers similarity, feed and trending queries.
type Service struct {
	store Store
	cache kvcache.Cache
	cfg   config.ServingConfig

	mu     sync.RWMutex
	handle *indexHandle
	sf     singleflight.Group
}

// New creates a serving service over the given store and cache.
func New(store Store, cache kvcache.Cache, cfg config.ServingConfig) *Service {
	return &Service{store: store, cache: cache, cfg: cfg}
}

// getIndex returns a decoded handle for the current ANN index. The
// encoded blob lives in the shared cache under the pipeline's index
// key; on a miss it is reloaded from the database and re-cached. The
// decoded forest is memoized in memory and reused as long as the blob
// fingerprint is unchanged.
func (s *Service) getIndex(ctx context.Context) (*indexHandle, error) {
	blob, ids, err := s.loadBlob(ctx)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(blob)

	s.mu.RLock()
	h := s.handle
	s.mu.RUnlock()
	if h != nil && h.sum == sum {
		return h, nil
	}

	forest, err := ann.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if forest.Len() != len(ids) {
		return nil, fmt.Errorf("index has %d vectors but %d vision IDs", forest.Len(), len(ids))
	}

	posByID := make(map[int64]int, len(ids))
	for i, id := range ids {
		posByID[id] = i
	}
	h = &indexHandle{forest: forest, visionIDs: ids, posByID: posByID, sum: sum}

	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()

	logging.Info().
		Int("visions", len(ids)).
		Int("vector_size", forest.Dim).
		Msg("Loaded ANN index")
	return h, nil
}

// cachedIndex is the cache representation of an index snapshot: the
// vision ID list alongside the encoded forest blob.
type cachedIndex struct {
	VisionIDs []int64
	Blob      []byte
}

func encodeCachedIndex(ids []int64, blob []byte) []byte {
	var buf bytes.Buffer
	// Encoding a fixed local struct cannot fail.
	_ = gob.NewEncoder(&buf).Encode(cachedIndex{VisionIDs: ids, Blob: blob})
	return buf.Bytes()
}

func decodeCachedIndex(raw []byte) ([]int64, []byte, error) {
	var ci cachedIndex
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&ci); err != nil {
		return nil, nil, fmt.Errorf("decode cached index: %w", err)
	}
	if len(ci.Blob) == 0 {
		return nil, nil, fmt.Errorf("cached index has empty blob")
	}
	return ci.VisionIDs, ci.Blob, nil
}

func (s *Service) loadBlob(ctx context.Context) ([]byte, []int64, error) {
	if raw, err := s.cache.Get(ctx, pipeline.CacheKeyIndex); err == nil {
		metrics.RecordCacheAccess("index", true)
		ids, blob, err := decodeCachedIndex(raw)
		if err == nil {
			return blob, ids, nil
		}
		logging.Warn().Err(err).Msg("Discarding corrupt cached index")
	} else if !errors.Is(err, kvcache.ErrNotFound) {
		metrics.CacheErrors.WithLabelValues("index").Inc()
	} else {
		metrics.RecordCacheAccess("index", false)
	}

	// Collapse concurrent reloads into a single snapshot fetch.
	v, err, _ := s.sf.Do("index", func() (interface{}, error) {
		snap, err := s.store.GetCurrentIndexSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, pipeline.CacheKeyIndex,
			encodeCachedIndex(snap.VisionIDs, snap.Blob), s.cfg.IndexCacheTTL); err != nil {
			logging.Warn().Err(err).Msg("Failed to cache index snapshot")
		}
		return snap, nil
	})
	if err != nil {
		return nil, nil, err
	}
	snap := v.(*models.IndexSnapshot)
	return snap.Blob, snap.VisionIDs, nil
}

// SimilarVisions returns up to k neighbors of the given vision. The
// ANN index is the primary path; any index problem falls back to the
// persisted similarity edges so the endpoint degrades rather than
// fails. An unknown vision returns database.ErrVisionNotFound.
func (s *Service) SimilarVisions(ctx context.Context, visionID int64, k int) ([]models.SimilarVision, models.SimilaritySource, error) {
	start := time.Now()

	if _, err := s.store.GetVision(ctx, visionID); err != nil {
		return nil, "", err
	}

	results, err := s.similarByIndex(ctx, visionID, k)
	if err == nil {
		metrics.RecordSimilarQuery(string(models.SourceIndex), time.Since(start))
		return results, models.SourceIndex, nil
	}

	reason := "query_failed"
	if errors.Is(err, database.ErrNoCurrentIndex) {
		reason = "index_missing"
	} else if errors.Is(err, errNotIndexed) {
		reason = "index_stale"
	}
	metrics.ServingFallbacks.WithLabelValues(reason).Inc()
	logging.Debug().Err(err).Int64("vision_id", visionID).Msg("Falling back to similarity edges")

	results, err = s.store.GetSimilarByEdges(ctx, visionID, k)
	if err != nil {
		return nil, "", fmt.Errorf("similar by edges: %w", err)
	}
	metrics.RecordSimilarQuery(string(models.SourceEdges), time.Since(start))
	return results, models.SourceEdges, nil
}

// errNotIndexed marks a vision present in the catalog but absent from
// the current index, typically one created after the last batch run.
var errNotIndexed = errors.New("vision not in current index")

func (s *Service) similarByIndex(ctx context.Context, visionID int64, k int) ([]models.SimilarVision, error) {
	h, err := s.getIndex(ctx)
	if err != nil {
		return nil, err
	}

	pos, ok := h.posByID[visionID]
	if !ok {
		return nil, errNotIndexed
	}

	// k+1 because the query item is its own nearest neighbor.
	neighbors, err := h.forest.QueryItem(pos, k+1)
	if err != nil {
		return nil, err
	}

	results := make([]models.SimilarVision, 0, k)
	for _, nb := range neighbors {
		if nb.Position == pos {
			continue
		}
		results = append(results, models.SimilarVision{
			VisionID: h.visionIDs[nb.Position],
			Score:    ann.DistanceToSimilarity(nb.Distance),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}
