// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

// Package recommend serves the read side of the pipeline: personalized
// recommendations, similar-event lookups and interaction totals, computed
// from the persisted interaction and similarity projections.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/eventstats/affinity/internal/store"
)

// InteractionSource is the slice of the store the engine reads
// interactions through.
type InteractionSource interface {
	InteractionsByUser(ctx context.Context, userID int64) ([]store.Interaction, error)
	EventIDsNotInteractedBy(ctx context.Context, userID int64) ([]int64, error)
	SumRatingsByEvents(ctx context.Context, eventIDs []int64) (map[int64]float64, error)
}

// SimilaritySource is the slice of the store the engine reads pair
// scores through.
type SimilaritySource interface {
	SimilaritiesByEvent(ctx context.Context, eventID int64) ([]store.Similarity, error)
	SimilaritiesBetweenSets(ctx context.Context, left, right []int64) ([]store.Similarity, error)
}

// RecommendedEvent is one scored result row.
type RecommendedEvent struct {
	EventID int64   `json:"event_id"`
	Score   float64 `json:"score"`
}

// Config bounds the engine's work per query.
type Config struct {
	// Neighbors caps how many known events back each prediction.
	Neighbors int

	// MaxResultsLimit caps the per-request result size.
	MaxResultsLimit int
}

// DefaultConfig returns the reference limits.
func DefaultConfig() Config {
	return Config{
		Neighbors:       5,
		MaxResultsLimit: 100,
	}
}

// Engine answers recommendation queries. It is stateless apart from its
// sources and safe for concurrent use.
type Engine struct {
	interactions InteractionSource
	similarities SimilaritySource
	cfg          Config
	logger       zerolog.Logger
}

// NewEngine creates an engine over the given sources.
func NewEngine(interactions InteractionSource, similarities SimilaritySource, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Neighbors <= 0 {
		cfg.Neighbors = DefaultConfig().Neighbors
	}
	if cfg.MaxResultsLimit <= 0 {
		cfg.MaxResultsLimit = DefaultConfig().MaxResultsLimit
	}
	return &Engine{
		interactions: interactions,
		similarities: similarities,
		cfg:          cfg,
		logger:       logger.With().Str("component", "recommend").Logger(),
	}
}

// RecommendForUser predicts ratings for events the user has not touched.
// Candidates are shortlisted by similarity to the user's most recent
// interactions, then scored by a weighted average over the most similar
// known events. Users with no history get nothing: there is no signal to
// anchor on.
func (e *Engine) RecommendForUser(ctx context.Context, userID int64, maxResults int) ([]RecommendedEvent, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	if maxResults > e.cfg.MaxResultsLimit {
		maxResults = e.cfg.MaxResultsLimit
	}

	history, err := e.interactions.InteractionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user history: %w", err)
	}
	if len(history) == 0 {
		return nil, nil
	}

	interacted := make([]int64, 0, len(history))
	ratingByEvent := make(map[int64]float64, len(history))
	for _, in := range history {
		if _, ok := ratingByEvent[in.EventID]; !ok {
			interacted = append(interacted, in.EventID)
		}
		if in.Rating > ratingByEvent[in.EventID] {
			ratingByEvent[in.EventID] = in.Rating
		}
	}

	anchors := recentEventIDs(history, maxResults)

	candidatePool, err := e.interactions.EventIDsNotInteractedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load candidate pool: %w", err)
	}
	if len(candidatePool) == 0 {
		return nil, nil
	}
	poolSet := toSet(candidatePool)

	cross, err := e.similarities.SimilaritiesBetweenSets(ctx, anchors, candidatePool)
	if err != nil {
		return nil, fmt.Errorf("load cross similarities: %w", err)
	}
	if len(cross) == 0 {
		return nil, nil
	}

	sortSimilaritiesDesc(cross)
	if len(cross) > maxResults {
		cross = cross[:maxResults]
	}

	// Shortlist candidates in best-first order, one slot per event.
	candidates := make([]int64, 0, maxResults)
	seen := make(map[int64]struct{}, maxResults)
	for _, sim := range cross {
		candidate := sim.EventA
		if _, ok := poolSet[candidate]; !ok {
			candidate = sim.EventB
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		candidates = append(candidates, candidate)
		if len(candidates) == maxResults {
			break
		}
	}

	neighborSims, err := e.similarities.SimilaritiesBetweenSets(ctx, candidates, interacted)
	if err != nil {
		return nil, fmt.Errorf("load neighbor similarities: %w", err)
	}

	simsByCandidate := make(map[int64][]store.Similarity, len(candidates))
	for _, sim := range neighborSims {
		if _, ok := seen[sim.EventA]; ok {
			simsByCandidate[sim.EventA] = append(simsByCandidate[sim.EventA], sim)
		} else if _, ok := seen[sim.EventB]; ok {
			simsByCandidate[sim.EventB] = append(simsByCandidate[sim.EventB], sim)
		}
	}

	results := make([]RecommendedEvent, 0, len(candidates))
	for _, eventID := range candidates {
		sims := simsByCandidate[eventID]
		sortSimilaritiesDesc(sims)
		if len(sims) > e.cfg.Neighbors {
			sims = sims[:e.cfg.Neighbors]
		}

		var weighted, coefSum float64
		for _, sim := range sims {
			coefSum += sim.Score
			neighbor := sim.EventA
			if neighbor == eventID {
				neighbor = sim.EventB
			}
			if rating, ok := ratingByEvent[neighbor]; ok {
				weighted += rating * sim.Score
			}
		}
		// No neighbors with any weight means no basis for a prediction.
		if coefSum <= 0 {
			continue
		}

		results = append(results, RecommendedEvent{
			EventID: eventID,
			Score:   roundScore(weighted / coefSum),
		})
	}

	sortResultsDesc(results)

	e.logger.Debug().
		Int64("user_id", userID).
		Int("history", len(history)).
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Msg("recommendations computed")

	return results, nil
}

// SimilarEvents returns the events most similar to eventID, skipping
// pairs the user has fully covered: when the user interacted with both
// endpoints the pair suggests nothing new.
func (e *Engine) SimilarEvents(ctx context.Context, userID, eventID int64, maxResults int) ([]RecommendedEvent, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	if maxResults > e.cfg.MaxResultsLimit {
		maxResults = e.cfg.MaxResultsLimit
	}

	sims, err := e.similarities.SimilaritiesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load similarities: %w", err)
	}
	if len(sims) == 0 {
		return nil, nil
	}

	history, err := e.interactions.InteractionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user history: %w", err)
	}
	interacted := make(map[int64]struct{}, len(history))
	for _, in := range history {
		interacted[in.EventID] = struct{}{}
	}

	results := make([]RecommendedEvent, 0, len(sims))
	for _, sim := range sims {
		_, hasA := interacted[sim.EventA]
		_, hasB := interacted[sim.EventB]
		if hasA && hasB {
			continue
		}
		other := sim.EventA
		if other == eventID {
			other = sim.EventB
		}
		results = append(results, RecommendedEvent{EventID: other, Score: sim.Score})
	}

	sortResultsDesc(results)
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// InteractionTotals sums stored ratings per requested event. Every
// requested event appears in the result, zero when nobody interacted.
func (e *Engine) InteractionTotals(ctx context.Context, eventIDs []int64) ([]RecommendedEvent, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	sums, err := e.interactions.SumRatingsByEvents(ctx, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("load rating sums: %w", err)
	}

	results := make([]RecommendedEvent, 0, len(eventIDs))
	seen := make(map[int64]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		results = append(results, RecommendedEvent{EventID: id, Score: sums[id]})
	}

	sortResultsDesc(results)
	return results, nil
}

// recentEventIDs picks the event IDs of the n most recent interactions.
// Timestamp ties break by ascending event ID so the anchor set does not
// depend on store row order.
func recentEventIDs(history []store.Interaction, n int) []int64 {
	sorted := make([]store.Interaction, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	out := make([]int64, 0, n)
	seen := make(map[int64]struct{}, n)
	for _, in := range sorted {
		if _, dup := seen[in.EventID]; dup {
			continue
		}
		seen[in.EventID] = struct{}{}
		out = append(out, in.EventID)
		if len(out) == n {
			break
		}
	}
	return out
}

func sortSimilaritiesDesc(sims []store.Similarity) {
	sort.SliceStable(sims, func(i, j int) bool {
		return sims[i].Score > sims[j].Score
	})
}

func sortResultsDesc(results []RecommendedEvent) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].EventID < results[j].EventID
	})
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// roundScore rounds half-up to two decimals for presentation.
func roundScore(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
