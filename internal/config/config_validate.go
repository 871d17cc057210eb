// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateCache(); err != nil {
		return err
	}

	if err := c.validatePipeline(); err != nil {
		return err
	}

	if err := c.validateServing(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("VISIONARY_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("VISIONARY_SERVER_TIMEOUT must be positive")
	}
	if c.Server.RateLimitReqs < 1 {
		return fmt.Errorf("VISIONARY_SERVER_RATE_LIMIT_REQS must be at least 1")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("VISIONARY_DATABASE_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("VISIONARY_DATABASE_THREADS must not be negative")
	}
	return nil
}

// cache backend names accepted by validateCache
var validCacheBackends = map[string]bool{
	"badger": true,
	"redis":  true,
	"memory": true,
}

func (c *Config) validateCache() error {
	backend := strings.ToLower(c.Cache.Backend)
	if !validCacheBackends[backend] {
		return fmt.Errorf("VISIONARY_CACHE_BACKEND must be one of badger, redis, memory; got %q", c.Cache.Backend)
	}
	if backend == "badger" && c.Cache.BadgerPath == "" {
		return fmt.Errorf("VISIONARY_CACHE_BADGER_PATH is required when backend is badger")
	}
	if backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("VISIONARY_CACHE_REDIS_ADDR is required when backend is redis")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline

	if p.WatchBatchSize < 1 {
		return fmt.Errorf("VISIONARY_PIPELINE_WATCH_BATCH_SIZE must be at least 1")
	}
	if p.WatchWindowDays < 1 {
		return fmt.Errorf("VISIONARY_PIPELINE_WATCH_WINDOW_DAYS must be at least 1")
	}
	if p.MaxWatchesPerUser < 0 {
		return fmt.Errorf("VISIONARY_PIPELINE_MAX_WATCHES_PER_USER must not be negative")
	}
	if p.Factors < 1 || p.Factors > 500 {
		return fmt.Errorf("VISIONARY_PIPELINE_FACTORS must be between 1 and 500, got %d", p.Factors)
	}
	if p.Iterations < 1 {
		return fmt.Errorf("VISIONARY_PIPELINE_ITERATIONS must be at least 1")
	}
	if p.Regularization <= 0 {
		return fmt.Errorf("VISIONARY_PIPELINE_REGULARIZATION must be positive")
	}
	if p.Alpha <= 0 {
		return fmt.Errorf("VISIONARY_PIPELINE_ALPHA must be positive")
	}
	if p.NumWorkers < 0 {
		return fmt.Errorf("VISIONARY_PIPELINE_NUM_WORKERS must not be negative")
	}
	if p.BehaviorWeight < 0 || p.ContentWeight < 0 {
		return fmt.Errorf("fusion weights must not be negative")
	}
	if p.BehaviorWeight+p.ContentWeight <= 0 {
		return fmt.Errorf("fusion weights must not both be zero")
	}
	if p.TopK < 1 {
		return fmt.Errorf("VISIONARY_PIPELINE_TOP_K must be at least 1")
	}
	if p.AnnTrees < 1 {
		return fmt.Errorf("VISIONARY_PIPELINE_ANN_TREES must be at least 1")
	}
	if p.LeaseTTL <= 0 {
		return fmt.Errorf("VISIONARY_PIPELINE_LEASE_TTL must be positive")
	}
	return nil
}

func (c *Config) validateServing() error {
	s := c.Serving

	if s.FeedSize < 1 {
		return fmt.Errorf("VISIONARY_SERVING_FEED_SIZE must be at least 1")
	}
	if s.FeedPageSize < 1 {
		return fmt.Errorf("VISIONARY_SERVING_FEED_PAGE_SIZE must be at least 1")
	}
	if s.FeedPageSize > s.FeedSize {
		return fmt.Errorf("VISIONARY_SERVING_FEED_PAGE_SIZE must not exceed VISIONARY_SERVING_FEED_SIZE")
	}
	if s.MaxLiveRatio < 0 || s.MaxLiveRatio > 1 {
		return fmt.Errorf("VISIONARY_SERVING_MAX_LIVE_RATIO must be between 0 and 1")
	}
	for name, ttl := range map[string]float64{
		"VISIONARY_SERVING_INDEX_CACHE_TTL":    s.IndexCacheTTL.Seconds(),
		"VISIONARY_SERVING_RUN_MARKER_TTL":     s.RunMarkerTTL.Seconds(),
		"VISIONARY_SERVING_FEED_CACHE_TTL":     s.FeedCacheTTL.Seconds(),
		"VISIONARY_SERVING_TRENDING_CACHE_TTL": s.TrendingCacheTTL.Seconds(),
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if s.LiveCandidateLimit < 1 || s.VodCandidateLimit < 1 {
		return fmt.Errorf("serving candidate limits must be at least 1")
	}
	return nil
}

// log level names accepted by validateLogging
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("VISIONARY_LOGGING_LEVEL must be one of trace, debug, info, warn, error, fatal; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("VISIONARY_LOGGING_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("VISIONARY_LOGGING_OUTPUT must be stdout or stderr, got %q", c.Logging.Output)
	}
	return nil
}
