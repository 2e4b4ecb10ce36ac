// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eventstats/affinity/internal/metrics"
)

// Similarity is one persisted pairwise score with EventA < EventB.
type Similarity struct {
	EventA    int64
	EventB    int64
	Score     float64
	Timestamp time.Time
}

// UpsertSimilarity inserts or replaces the score for a pair. Last write
// wins: the aggregator recomputes the full score on every update, so the
// newest record is always the most accurate.
func (db *DB) UpsertSimilarity(ctx context.Context, sim Similarity) error {
	if sim.EventA > sim.EventB {
		sim.EventA, sim.EventB = sim.EventB, sim.EventA
	}

	start := time.Now()

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO similarities (event_a, event_b, score, ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_a, event_b) DO UPDATE SET
			score = EXCLUDED.score,
			ts = EXCLUDED.ts`,
		sim.EventA, sim.EventB, sim.Score, sim.Timestamp)
	metrics.ObserveStoreQuery("upsert", "similarities", start, err)
	if err != nil {
		return fmt.Errorf("upsert similarity: %w", err)
	}

	if rows, err := res.RowsAffected(); err == nil {
		metrics.RecordUpsert("similarities", rows)
	}
	return nil
}

// SimilaritiesByEvent returns every pair touching the given event.
func (db *DB) SimilaritiesByEvent(ctx context.Context, eventID int64) ([]Similarity, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT event_a, event_b, score, ts
		FROM similarities
		WHERE event_a = ? OR event_b = ?`, eventID, eventID)
	metrics.ObserveStoreQuery("by_event", "similarities", start, err)
	if err != nil {
		return nil, fmt.Errorf("query similarities by event: %w", err)
	}
	defer rows.Close()

	return scanSimilarities(rows)
}

// SimilaritiesBetweenSets returns pairs with one endpoint in each set,
// in either orientation.
func (db *DB) SimilaritiesBetweenSets(ctx context.Context, left, right []int64) ([]Similarity, error) {
	if len(left) == 0 || len(right) == 0 {
		return nil, nil
	}

	start := time.Now()

	lp := placeholders(len(left))
	rp := placeholders(len(right))
	query := fmt.Sprintf(`
		SELECT event_a, event_b, score, ts
		FROM similarities
		WHERE (event_a IN (%s) AND event_b IN (%s))
		   OR (event_b IN (%s) AND event_a IN (%s))`, lp, rp, lp, rp)

	args := make([]any, 0, 2*(len(left)+len(right)))
	args = append(args, int64Args(left)...)
	args = append(args, int64Args(right)...)
	args = append(args, int64Args(left)...)
	args = append(args, int64Args(right)...)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.ObserveStoreQuery("between_sets", "similarities", start, err)
	if err != nil {
		return nil, fmt.Errorf("query similarities between sets: %w", err)
	}
	defer rows.Close()

	return scanSimilarities(rows)
}

func scanSimilarities(rows *sql.Rows) ([]Similarity, error) {
	var out []Similarity
	for rows.Next() {
		var s Similarity
		if err := rows.Scan(&s.EventA, &s.EventB, &s.Score, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan similarity: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
