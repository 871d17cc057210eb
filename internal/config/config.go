// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

// Package config provides layered configuration for Visionary.
//
// Configuration is resolved in three layers, each overriding the last:
//
//  1. Compiled-in defaults
//  2. YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (VISIONARY_ prefix)
package config

import "time"

// Config is the root configuration for both the server and the batch
// compute entry points.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Serving  ServingConfig  `koanf:"serving"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// CacheConfig selects and tunes the key-value cache backend.
type CacheConfig struct {
	// Backend is one of "badger", "redis" or "memory".
	Backend    string        `koanf:"backend"`
	BadgerPath string        `koanf:"badger_path"`
	RedisAddr  string        `koanf:"redis_addr"`
	RedisDB    int           `koanf:"redis_db"`
	RedisPass  string        `koanf:"redis_pass"`
	// DialTimeout bounds the initial connection attempt for remote backends.
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// PipelineConfig tunes the batch similarity pipeline.
type PipelineConfig struct {
	// Interval between scheduled pipeline runs when running inside the
	// server process. Zero disables the scheduler.
	Interval time.Duration `koanf:"interval"`

	// WatchBatchSize is the page size for reading watch events.
	WatchBatchSize int `koanf:"watch_batch_size"`

	// WatchWindowDays is the recency horizon for watch events. Events
	// older than this contribute zero weight.
	WatchWindowDays int `koanf:"watch_window_days"`

	// MaxWatchesPerUser caps how many recent events a single account
	// contributes to co-watch counting. 0 = unlimited.
	MaxWatchesPerUser int `koanf:"max_watches_per_user"`

	// ALS factorization parameters.
	Factors        int     `koanf:"factors"`
	Iterations     int     `koanf:"iterations"`
	Regularization float64 `koanf:"regularization"`
	Alpha          float64 `koanf:"alpha"`
	NumWorkers     int     `koanf:"num_workers"` // 0 = runtime.NumCPU()

	// Embedding fusion weights. ContentWeight scales the content
	// feature side, BehaviorWeight the factorized (latent) side.
	BehaviorWeight float64 `koanf:"behavior_weight"`
	ContentWeight  float64 `koanf:"content_weight"`

	// TopK is the number of similarity edges kept per video.
	TopK int `koanf:"top_k"`

	// ANN forest parameters.
	AnnTrees int `koanf:"ann_trees"`

	// LeaseTTL bounds how long a crashed run can block the next one.
	LeaseTTL time.Duration `koanf:"lease_ttl"`
}

// ServingConfig tunes the read path: cache TTLs and feed composition.
type ServingConfig struct {
	IndexCacheTTL    time.Duration `koanf:"index_cache_ttl"`
	RunMarkerTTL     time.Duration `koanf:"run_marker_ttl"`
	FeedCacheTTL     time.Duration `koanf:"feed_cache_ttl"`
	TrendingCacheTTL time.Duration `koanf:"trending_cache_ttl"`

	// FeedSize is the total length of a composed feed; pages are cut
	// from it in slices of FeedPageSize.
	FeedSize     int `koanf:"feed_size"`
	FeedPageSize int `koanf:"feed_page_size"`

	// MaxLiveRatio caps the fraction of live streams in a feed.
	MaxLiveRatio float64 `koanf:"max_live_ratio"`

	// LiveCandidateLimit and VodCandidateLimit bound how many
	// candidates of each kind are considered per feed composition.
	LiveCandidateLimit int `koanf:"live_candidate_limit"`
	VodCandidateLimit  int `koanf:"vod_candidate_limit"`

	// SubscriptionBonus is added to a live stream's score when the
	// viewer subscribes to its channel.
	SubscriptionBonus float64 `koanf:"subscription_bonus"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	Output string `koanf:"output"` // "stdout" or "stderr"
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8470,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/visionary.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Cache: CacheConfig{
			Backend:     "badger",
			BadgerPath:  "/data/visionary-cache",
			RedisAddr:   "127.0.0.1:6379",
			RedisDB:     0,
			DialTimeout: 5 * time.Second,
		},
		Pipeline: PipelineConfig{
			Interval:          6 * time.Hour,
			WatchBatchSize:    10000,
			WatchWindowDays:   30,
			MaxWatchesPerUser: 0,
			Factors:           50,
			Iterations:        15,
			Regularization:    0.1,
			Alpha:             40.0,
			NumWorkers:        0,
			BehaviorWeight:    0.3,
			ContentWeight:     0.7,
			TopK:              10,
			AnnTrees:          10,
			LeaseTTL:          2 * time.Hour,
		},
		Serving: ServingConfig{
			IndexCacheTTL:      12 * time.Hour,
			RunMarkerTTL:       time.Hour,
			FeedCacheTTL:       50 * time.Second,
			TrendingCacheTTL:   5 * time.Minute,
			FeedSize:           100,
			FeedPageSize:       10,
			MaxLiveRatio:       0.4,
			LiveCandidateLimit: 30,
			VodCandidateLimit:  60,
			SubscriptionBonus:  30.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
