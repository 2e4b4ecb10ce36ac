// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package config

import (
	"time"
)

// Config holds all application configuration for both the aggregator and the
// analyzer binaries.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all settings
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting (NATS_URL, DATABASE_PATH, ...)
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	NATS      NATSConfig      `koanf:"nats"`
	Consumer  ConsumerConfig  `koanf:"consumer"`
	Database  DatabaseConfig  `koanf:"database"`
	Recommend RecommendConfig `koanf:"recommend"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// NATSConfig holds the JetStream transport settings shared by both binaries.
//
// Environment Variables:
//   - NATS_URL: broker URL (default nats://127.0.0.1:4222)
//   - NATS_EMBEDDED_SERVER: run an embedded JetStream server (single-node mode)
//   - NATS_STORE_DIR: JetStream storage directory for the embedded server
type NATSConfig struct {
	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process NATS JetStream server so a single
	// node needs no external broker. The client URL of the embedded server
	// overrides URL when enabled.
	EmbeddedServer bool   `koanf:"embedded_server"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	// Stream and subject names for the two logs.
	ActionsStream     string `koanf:"actions_stream"`
	ActionsSubject    string `koanf:"actions_subject"`
	SimilarityStream  string `koanf:"similarity_stream"`
	SimilaritySubject string `koanf:"similarity_subject"`

	// Stream retention for both logs.
	RetentionAge time.Duration `koanf:"retention_age"`
	Replicas     int           `koanf:"replicas"`

	// Connection resilience.
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// BreakerEnabled wraps similarity publishes in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// ConsumerConfig controls the pull-consumer loops.
//
// PollTimeout bounds every blocking fetch so shutdown signals are observed
// promptly. CommitEvery batches cumulative acks to bound the redelivery
// window without acking every record.
type ConsumerConfig struct {
	DurableName string        `koanf:"durable_name"`
	BatchSize   int           `koanf:"batch_size"`
	PollTimeout time.Duration `koanf:"poll_timeout"`
	CommitEvery int           `koanf:"commit_every"`
	AckWait     time.Duration `koanf:"ack_wait"`
	MaxDeliver  int           `koanf:"max_deliver"`
}

// DatabaseConfig holds DuckDB settings for the analyzer's two persisted tables.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// RecommendConfig holds query engine tuning.
type RecommendConfig struct {
	// Neighbors is K for the weighted KNN prediction step.
	Neighbors int `koanf:"neighbors"`

	// MaxResultsLimit caps the max_results query parameter.
	MaxResultsLimit int `koanf:"max_results_limit"`
}

// ServerConfig holds the analyzer's HTTP query surface settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists origins allowed to call the query API from a
	// browser. The API is read-only, so the default is permissive.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
