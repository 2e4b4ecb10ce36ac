// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

// Package analyzer wires the two persisted projections of the logs: user
// actions become monotonic interaction ratings, similarity updates become
// last-write-wins pair scores.
package analyzer

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/eventstats/affinity/internal/store"
	"github.com/eventstats/affinity/internal/stream"
)

// ActionHandler persists each action as an interaction rating. Malformed
// records are dropped; database failures are retryable.
func ActionHandler(db *store.DB) stream.Handler {
	return func(ctx context.Context, data []byte) error {
		action, err := stream.UnmarshalUserAction(data)
		if err != nil {
			return fmt.Errorf("%w: %v", stream.ErrDropRecord, err)
		}

		_, err = db.UpsertInteractionIfHigher(ctx, store.Interaction{
			UserID:    action.UserID,
			EventID:   action.EventID,
			Rating:    action.ActionType.Rating(),
			Timestamp: action.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("persist interaction: %w", err)
		}
		return nil
	}
}

// SimilarityHandler persists each similarity update. Pairs arrive in
// either orientation and are normalized before storage; a pair with the
// same event on both sides is discarded.
func SimilarityHandler(db *store.DB) stream.Handler {
	return func(ctx context.Context, data []byte) error {
		var sim stream.EventSimilarity
		if err := json.Unmarshal(data, &sim); err != nil {
			return fmt.Errorf("%w: %v", stream.ErrDropRecord, err)
		}
		if sim.EventA <= 0 || sim.EventB <= 0 {
			return fmt.Errorf("%w: missing event id", stream.ErrDropRecord)
		}
		if sim.Score < 0 || sim.Score > 1 {
			return fmt.Errorf("%w: score %f out of range", stream.ErrDropRecord, sim.Score)
		}
		if sim.EventA == sim.EventB {
			return fmt.Errorf("%w: identical events %d", stream.ErrDiscardRecord, sim.EventA)
		}

		if err := db.UpsertSimilarity(ctx, store.Similarity{
			EventA:    sim.EventA,
			EventB:    sim.EventB,
			Score:     sim.Score,
			Timestamp: sim.Timestamp,
		}); err != nil {
			return fmt.Errorf("persist similarity: %w", err)
		}
		return nil
	}
}
