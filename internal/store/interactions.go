// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/eventstats/affinity/internal/metrics"
)

// Interaction is one persisted (user, event) rating, the strongest action
// seen so far for the pair.
type Interaction struct {
	UserID    int64
	EventID   int64
	Rating    float64
	Timestamp time.Time
}

// UpsertInteractionIfHigher inserts the interaction or raises an existing
// rating. A weaker or equal rating leaves the stored row untouched, which
// keeps ratings monotonic no matter how records are ordered or redelivered.
// Returns the number of rows written (0 or 1).
func (db *DB) UpsertInteractionIfHigher(ctx context.Context, in Interaction) (int64, error) {
	start := time.Now()

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO interactions (user_id, event_id, rating, ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, event_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			ts = EXCLUDED.ts
		WHERE interactions.rating < EXCLUDED.rating`,
		in.UserID, in.EventID, in.Rating, in.Timestamp)
	metrics.ObserveStoreQuery("upsert_if_higher", "interactions", start, err)
	if err != nil {
		return 0, fmt.Errorf("upsert interaction: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("upsert interaction rows: %w", err)
	}
	metrics.RecordUpsert("interactions", rows)
	return rows, nil
}

// InteractionsByUser returns every interaction of one user.
func (db *DB) InteractionsByUser(ctx context.Context, userID int64) ([]Interaction, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, event_id, rating, ts
		FROM interactions
		WHERE user_id = ?`, userID)
	metrics.ObserveStoreQuery("by_user", "interactions", start, err)
	if err != nil {
		return nil, fmt.Errorf("query interactions by user: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.UserID, &in.EventID, &in.Rating, &in.Timestamp); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// EventIDsNotInteractedBy returns the distinct events the user has never
// interacted with, the candidate pool for recommendations.
func (db *DB) EventIDsNotInteractedBy(ctx context.Context, userID int64) ([]int64, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT event_id
		FROM interactions
		WHERE event_id NOT IN (
			SELECT event_id FROM interactions WHERE user_id = ?
		)`, userID)
	metrics.ObserveStoreQuery("not_interacted_by", "interactions", start, err)
	if err != nil {
		return nil, fmt.Errorf("query non-interacted events: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SumRatingsByEvents sums stored ratings per event for the given set.
// Events with no interactions are absent from the result.
func (db *DB) SumRatingsByEvents(ctx context.Context, eventIDs []int64) (map[int64]float64, error) {
	if len(eventIDs) == 0 {
		return map[int64]float64{}, nil
	}

	start := time.Now()

	query := fmt.Sprintf(`
		SELECT event_id, SUM(rating)
		FROM interactions
		WHERE event_id IN (%s)
		GROUP BY event_id`, placeholders(len(eventIDs)))

	rows, err := db.conn.QueryContext(ctx, query, int64Args(eventIDs)...)
	metrics.ObserveStoreQuery("sum_ratings", "interactions", start, err)
	if err != nil {
		return nil, fmt.Errorf("query rating sums: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]float64, len(eventIDs))
	for rows.Next() {
		var id int64
		var sum float64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("scan rating sum: %w", err)
		}
		out[id] = sum
	}
	return out, rows.Err()
}
