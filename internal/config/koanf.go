// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/affinity/config.yaml",
	"/etc/affinity/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:               "nats://127.0.0.1:4222",
			EmbeddedServer:    false,
			Host:              "127.0.0.1",
			Port:              4222,
			StoreDir:          "/data/nats/jetstream",
			MaxMemory:         1 << 30,  // 1GB
			MaxStore:          10 << 30, // 10GB
			ActionsStream:     "ACTIONS",
			ActionsSubject:    "stats.user-actions",
			SimilarityStream:  "SIMILARITY",
			SimilaritySubject: "stats.event-similarity",
			RetentionAge:      7 * 24 * time.Hour,
			Replicas:          1,
			MaxReconnects:     -1, // retry forever
			ReconnectWait:     2 * time.Second,
			BreakerEnabled:    true,
		},
		Consumer: ConsumerConfig{
			DurableName: "affinity",
			BatchSize:   100,
			PollTimeout: 100 * time.Millisecond,
			CommitEvery: 10,
			AckWait:     30 * time.Second,
			MaxDeliver:  -1, // redeliver until acked; upserts are idempotent
		},
		Database: DatabaseConfig{
			Path:      "/data/affinity.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Recommend: RecommendConfig{
			Neighbors:       5,
			MaxResultsLimit: 100,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8084,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config File: optional YAML config file (if present)
//  3. Environment Variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// Environment variable names map to koanf paths:
	// NATS_URL -> nats.url, CONSUMER_COMMIT_EVERY -> consumer.commit_every
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sectionPrefixes maps environment variable prefixes to config sections.
// Anything after the prefix becomes the key within that section:
// NATS_ACTIONS_SUBJECT -> nats.actions_subject.
var sectionPrefixes = []string{
	"nats",
	"consumer",
	"database",
	"recommend",
	"server",
	"logging",
}

// envTransformFunc transforms environment variable names to koanf paths.
// Unrelated environment variables (PATH, HOME, ...) return "" and are ignored.
func envTransformFunc(key string) string {
	lower := strings.ToLower(key)

	for _, section := range sectionPrefixes {
		prefix := section + "_"
		if strings.HasPrefix(lower, prefix) {
			return section + "." + strings.TrimPrefix(lower, prefix)
		}
	}

	return ""
}
