// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package serve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/visionary/internal/kvcache"
	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/metrics"
	"github.com/tomtom215/visionary/internal/models"
)

const (
	// liveSlotStride places a live vision at every third feed slot
	// while live candidates remain, keeping streams visible without
	// letting them dominate.
	liveSlotStride = 3

	trendingWindowDays = 7
	trendingLimit      = 50
)

// RecommendedFeed returns one page of the personalized feed for a
// user. Live and VOD candidates are scored separately, interleaved
// into a feed of up to FeedSize entries with a bounded live share,
// then cut into FeedPageSize pages. Pages are cached briefly so
// repeated loads within a minute stay off the database.
func (s *Service) RecommendedFeed(ctx context.Context, userID int64, filter models.FeedFilter, page int) ([]models.FeedEntry, bool, error) {
	key := fmt.Sprintf("feed:%d:%s:%d", userID, filter, page)
	if entries, ok := s.cachedEntries(ctx, key, "feed"); ok {
		return entries, true, nil
	}

	start := time.Now()
	now := time.Now()

	subs, err := s.store.GetSubscribedCreators(ctx, userID)
	if err != nil {
		// Personalization is a bonus, not a requirement.
		logging.Warn().Err(err).Int64("user_id", userID).Msg("Failed to load subscriptions")
		subs = nil
	}

	var live, vod []models.FeedEntry
	if filter != models.FilterVOD {
		candidates, err := s.store.GetFeedCandidates(ctx, models.StatusLive, s.cfg.LiveCandidateLimit)
		if err != nil {
			return nil, false, fmt.Errorf("load live candidates: %w", err)
		}
		live = s.scoreCandidates(candidates, subs, now, true)
	}
	if filter != models.FilterLive {
		candidates, err := s.store.GetFeedCandidates(ctx, models.StatusVOD, s.cfg.VodCandidateLimit)
		if err != nil {
			return nil, false, fmt.Errorf("load vod candidates: %w", err)
		}
		vod = s.scoreCandidates(candidates, subs, now, false)
	}

	ranked := interleave(live, vod, s.cfg.FeedSize, s.cfg.MaxLiveRatio)
	entries := pageSlice(ranked, page, s.cfg.FeedPageSize)

	metrics.FeedCompositionDuration.Observe(time.Since(start).Seconds())
	s.cacheEntries(ctx, key, entries, s.cfg.FeedCacheTTL)
	return entries, false, nil
}

// scoreCandidates ranks feed candidates. The base score rewards
// engagement counters; VOD additionally gets a freshness bonus that
// decays with age, and subscribed creators get a flat boost.
func (s *Service) scoreCandidates(candidates []models.Vision, subs map[int64]bool, now time.Time, isLive bool) []models.FeedEntry {
	entries := make([]models.FeedEntry, 0, len(candidates))
	for i := range candidates {
		v := candidates[i]
		score := 10.0*float64(v.Likes) + 5.0*float64(v.CommentCount) + 0.01*float64(v.Views)
		if !isLive {
			score += 10.0 / math.Max(float64(v.DaysOld(now)), 1)
		}
		if subs[v.CreatorID] {
			score += s.cfg.SubscriptionBonus
		}
		entries = append(entries, models.FeedEntry{Vision: v, Score: score, IsLive: isLive})
	}
	sortEntries(entries)
	return entries
}

func sortEntries(entries []models.FeedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Vision.ID < entries[j].Vision.ID
	})
}

// interleave merges ranked live and VOD lists into one feed of up to
// size entries. Live entries take every liveSlotStride-th slot until
// the live quota (size * maxLiveRatio, rounded down) is spent; VOD
// fills everything else. Either list running dry hands its slots to
// the other.
func interleave(live, vod []models.FeedEntry, size int, maxLiveRatio float64) []models.FeedEntry {
	if size <= 0 {
		return nil
	}
	liveQuota := int(float64(size) * maxLiveRatio)

	out := make([]models.FeedEntry, 0, size)
	li, vi := 0, 0
	for len(out) < size && (li < len(live) || vi < len(vod)) {
		takeLive := li < len(live) && li < liveQuota &&
			(vi >= len(vod) || len(out)%liveSlotStride == liveSlotStride-1)
		if takeLive {
			out = append(out, live[li])
			li++
			continue
		}
		if vi < len(vod) {
			out = append(out, vod[vi])
			vi++
			continue
		}
		// VOD exhausted: live fills the rest up to its quota.
		if li < len(live) && li < liveQuota {
			out = append(out, live[li])
			li++
			continue
		}
		break
	}
	return out
}

func pageSlice(entries []models.FeedEntry, page, size int) []models.FeedEntry {
	if page < 0 || size <= 0 {
		return nil
	}
	lo := page * size
	if lo >= len(entries) {
		return []models.FeedEntry{}
	}
	hi := lo + size
	if hi > len(entries) {
		hi = len(entries)
	}
	return entries[lo:hi]
}

// TrendingVisions returns recently-created visions ranked by
// engagement velocity, cached per filter and page.
func (s *Service) TrendingVisions(ctx context.Context, filter models.FeedFilter, page int) ([]models.FeedEntry, bool, error) {
	key := fmt.Sprintf("trending:%s:%d", filter, page)
	if entries, ok := s.cachedEntries(ctx, key, "trending"); ok {
		return entries, true, nil
	}

	candidates, err := s.store.GetTrendingCandidates(ctx, trendingWindowDays, trendingLimit)
	if err != nil {
		return nil, false, fmt.Errorf("load trending candidates: %w", err)
	}

	now := time.Now()
	entries := make([]models.FeedEntry, 0, len(candidates))
	for i := range candidates {
		v := candidates[i]
		if filter == models.FilterLive && v.Status != models.StatusLive {
			continue
		}
		if filter == models.FilterVOD && v.Status != models.StatusVOD {
			continue
		}
		velocity := v.EngagementScore / math.Max(float64(v.DaysOld(now)), 1)
		entries = append(entries, models.FeedEntry{
			Vision: v,
			Score:  velocity,
			IsLive: v.Status == models.StatusLive,
		})
	}
	entries = pageSlice(entries, page, s.cfg.FeedPageSize)

	s.cacheEntries(ctx, key, entries, s.cfg.TrendingCacheTTL)
	return entries, false, nil
}

func (s *Service) cachedEntries(ctx context.Context, key, keyspace string) ([]models.FeedEntry, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvcache.ErrNotFound) {
			metrics.CacheErrors.WithLabelValues(keyspace).Inc()
		}
		metrics.RecordCacheAccess(keyspace, false)
		return nil, false
	}
	var entries []models.FeedEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Discarding corrupt cached feed page")
		metrics.RecordCacheAccess(keyspace, false)
		return nil, false
	}
	metrics.RecordCacheAccess(keyspace, true)
	return entries, true
}

func (s *Service) cacheEntries(ctx context.Context, key string, entries []models.FeedEntry, ttl time.Duration) {
	raw, err := json.Marshal(entries)
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Failed to encode feed page for cache")
		return
	}
	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Failed to cache feed page")
	}
}
