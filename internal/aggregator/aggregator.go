// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package aggregator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/eventstats/affinity/internal/logging"
	"github.com/eventstats/affinity/internal/stream"
)

// Aggregator applies user actions to the weight matrix and produces the
// similarity updates each action triggers. Similarity between two events
// is the weighted overlap of their user vectors:
//
//	sim(A,B) = Σ_u min(w_A(u), w_B(u)) / (sqrt(Σ w_A) * sqrt(Σ w_B))
//
// Only pairs that share the triggering user can change, so each action is
// compared against just the other events that user has touched.
type Aggregator struct {
	matrix *Matrix
	clock  func() time.Time
}

// New returns an aggregator over a fresh matrix.
func New() *Aggregator {
	return &Aggregator{
		matrix: NewMatrix(),
		clock:  time.Now,
	}
}

// Matrix exposes the underlying weight matrix.
func (a *Aggregator) Matrix() *Matrix {
	return a.matrix
}

// Apply folds one action into the matrix and returns the similarity
// updates it triggered. A weaker or repeated action changes no weight and
// returns nothing.
func (a *Aggregator) Apply(action *stream.UserAction) []stream.EventSimilarity {
	rating := action.ActionType.Rating()

	if !a.matrix.UpsertMax(action.EventID, action.UserID, rating) {
		return nil
	}

	vec, normA := a.matrix.Snapshot(action.EventID)
	if normA <= 0 {
		return nil
	}

	partners := a.matrix.EventsOfUser(action.UserID)

	var out []stream.EventSimilarity
	now := a.clock()
	for _, other := range partners {
		if other == action.EventID {
			continue
		}

		sumMin, normB := a.matrix.Overlap(other, vec)
		if sumMin <= 0 || normB <= 0 {
			continue
		}

		sim := sumMin / (normA * normB)
		if sim <= 0 {
			continue
		}

		a.matrix.PutSimilarity(action.EventID, other, sim)

		pair := orderPair(action.EventID, other)
		out = append(out, stream.EventSimilarity{
			EventA:    pair.a,
			EventB:    pair.b,
			Score:     roundScore(sim),
			Timestamp: now,
		})
	}

	logging.Debug().
		Int64("event_id", action.EventID).
		Int64("user_id", action.UserID).
		Float64("rating", rating).
		Int("updates", len(out)).
		Msg("action applied")

	return out
}

// roundScore rounds half-up to two decimals, matching the precision the
// similarity store keeps.
func roundScore(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// SimilarityPublisher publishes a batch of similarity updates.
type SimilarityPublisher interface {
	PublishSimilarities(ctx context.Context, sims []stream.EventSimilarity) error
}

// Handler returns the stream handler for the actions log: decode, apply,
// publish. Malformed records are dropped; publish failures are retryable
// since republishing is deduplicated downstream.
func (a *Aggregator) Handler(pub SimilarityPublisher) stream.Handler {
	return func(ctx context.Context, data []byte) error {
		action, err := stream.UnmarshalUserAction(data)
		if err != nil {
			return fmt.Errorf("%w: %v", stream.ErrDropRecord, err)
		}

		sims := a.Apply(action)
		if len(sims) == 0 {
			return nil
		}

		if err := pub.PublishSimilarities(ctx, sims); err != nil {
			return fmt.Errorf("publish similarity updates: %w", err)
		}
		return nil
	}
}
