// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

// Package store persists interactions and pairwise similarities in DuckDB.
// Both tables are written by the analyzer's stream handlers and read by the
// recommendation engine; all writes are idempotent upserts so redelivered
// records are harmless.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/eventstats/affinity/internal/config"
	"github.com/eventstats/affinity/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database file and initializes the schema.
// An empty path opens an in-memory database, used by tests.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	dsn := ""
	if cfg.Path != "" {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, threads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Msg("database opened")
	return db, nil
}

func (db *DB) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			user_id BIGINT NOT NULL,
			event_id BIGINT NOT NULL,
			rating DOUBLE NOT NULL,
			ts TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, event_id)
		)`,
		`CREATE TABLE IF NOT EXISTS similarities (
			event_a BIGINT NOT NULL,
			event_b BIGINT NOT NULL,
			score DOUBLE NOT NULL,
			ts TIMESTAMP NOT NULL,
			PRIMARY KEY (event_a, event_b)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_event ON interactions (event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_similarities_event_b ON similarities (event_b)`,
	}

	for _, q := range queries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Ping verifies the connection, used by health checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// placeholders returns "?,?,...,?" with n slots for IN-list expansion.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
