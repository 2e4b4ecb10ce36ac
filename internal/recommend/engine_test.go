// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventstats/affinity/internal/store"
)

// fakeStore serves both source interfaces from in-memory slices.
type fakeStore struct {
	interactions []store.Interaction
	similarities []store.Similarity
}

func (f *fakeStore) InteractionsByUser(_ context.Context, userID int64) ([]store.Interaction, error) {
	var out []store.Interaction
	for _, in := range f.interactions {
		if in.UserID == userID {
			out = append(out, in)
		}
	}
	return out, nil
}

func (f *fakeStore) EventIDsNotInteractedBy(_ context.Context, userID int64) ([]int64, error) {
	mine := make(map[int64]struct{})
	for _, in := range f.interactions {
		if in.UserID == userID {
			mine[in.EventID] = struct{}{}
		}
	}
	seen := make(map[int64]struct{})
	var out []int64
	for _, in := range f.interactions {
		if _, ok := mine[in.EventID]; ok {
			continue
		}
		if _, dup := seen[in.EventID]; dup {
			continue
		}
		seen[in.EventID] = struct{}{}
		out = append(out, in.EventID)
	}
	return out, nil
}

func (f *fakeStore) SumRatingsByEvents(_ context.Context, eventIDs []int64) (map[int64]float64, error) {
	want := make(map[int64]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = struct{}{}
	}
	out := make(map[int64]float64)
	for _, in := range f.interactions {
		if _, ok := want[in.EventID]; ok {
			out[in.EventID] += in.Rating
		}
	}
	return out, nil
}

func (f *fakeStore) SimilaritiesByEvent(_ context.Context, eventID int64) ([]store.Similarity, error) {
	var out []store.Similarity
	for _, s := range f.similarities {
		if s.EventA == eventID || s.EventB == eventID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) SimilaritiesBetweenSets(_ context.Context, left, right []int64) ([]store.Similarity, error) {
	ls := toSet(left)
	rs := toSet(right)
	var out []store.Similarity
	for _, s := range f.similarities {
		_, la := ls[s.EventA]
		_, lb := ls[s.EventB]
		_, ra := rs[s.EventA]
		_, rb := rs[s.EventB]
		if (la && rb) || (lb && ra) {
			out = append(out, s)
		}
	}
	return out, nil
}

func ts(offset int) time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).Add(time.Duration(offset) * time.Minute)
}

func newTestEngine(fs *fakeStore) *Engine {
	return NewEngine(fs, fs, DefaultConfig(), zerolog.Nop())
}

func referenceStore() *fakeStore {
	return &fakeStore{
		interactions: []store.Interaction{
			{UserID: 1, EventID: 2, Rating: 0.4, Timestamp: ts(1)},
			{UserID: 1, EventID: 3, Rating: 0.8, Timestamp: ts(2)},
			{UserID: 1, EventID: 1, Rating: 1.0, Timestamp: ts(3)},
			{UserID: 2, EventID: 4, Rating: 0.8, Timestamp: ts(1)},
			{UserID: 2, EventID: 5, Rating: 0.4, Timestamp: ts(2)},
			{UserID: 3, EventID: 4, Rating: 1.0, Timestamp: ts(3)},
		},
		similarities: []store.Similarity{
			{EventA: 1, EventB: 4, Score: 0.9, Timestamp: ts(0)},
			{EventA: 2, EventB: 4, Score: 0.5, Timestamp: ts(0)},
			{EventA: 3, EventB: 5, Score: 0.7, Timestamp: ts(0)},
			{EventA: 1, EventB: 5, Score: 0.2, Timestamp: ts(0)},
			{EventA: 4, EventB: 5, Score: 0.3, Timestamp: ts(0)},
		},
	}
}

func TestRecommendForUser(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(referenceStore())

	got, err := e.RecommendForUser(ctx, 1, 10)
	if err != nil {
		t.Fatalf("RecommendForUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecommendForUser() = %v, want 2 results", got)
	}

	// Candidate 5: (0.8*0.7 + 1.0*0.2) / 0.9 = 0.8444 -> 0.84.
	// Candidate 4: (1.0*0.9 + 0.4*0.5) / 1.4 = 0.7857 -> 0.79.
	if got[0].EventID != 5 || got[0].Score != 0.84 {
		t.Errorf("results[0] = %+v, want event 5 score 0.84", got[0])
	}
	if got[1].EventID != 4 || got[1].Score != 0.79 {
		t.Errorf("results[1] = %+v, want event 4 score 0.79", got[1])
	}
}

func TestRecommendForUserEdgeCases(t *testing.T) {
	ctx := context.Background()

	t.Run("zero max results", func(t *testing.T) {
		e := newTestEngine(referenceStore())
		got, err := e.RecommendForUser(ctx, 1, 0)
		if err != nil || got != nil {
			t.Errorf("RecommendForUser(max=0) = %v, %v, want nil, nil", got, err)
		}
	})

	t.Run("unknown user has no anchor", func(t *testing.T) {
		e := newTestEngine(referenceStore())
		got, err := e.RecommendForUser(ctx, 99, 10)
		if err != nil || got != nil {
			t.Errorf("RecommendForUser(unknown) = %v, %v, want nil, nil", got, err)
		}
	})

	t.Run("user who saw everything gets nothing", func(t *testing.T) {
		fs := &fakeStore{
			interactions: []store.Interaction{
				{UserID: 1, EventID: 1, Rating: 0.4, Timestamp: ts(1)},
				{UserID: 1, EventID: 2, Rating: 0.4, Timestamp: ts(2)},
			},
			similarities: []store.Similarity{
				{EventA: 1, EventB: 2, Score: 0.8, Timestamp: ts(0)},
			},
		}
		got, err := newTestEngine(fs).RecommendForUser(ctx, 1, 10)
		if err != nil || got != nil {
			t.Errorf("RecommendForUser(saturated) = %v, %v, want nil, nil", got, err)
		}
	})

	t.Run("zero-weight neighbors exclude the candidate", func(t *testing.T) {
		fs := &fakeStore{
			interactions: []store.Interaction{
				{UserID: 1, EventID: 1, Rating: 1.0, Timestamp: ts(1)},
				{UserID: 2, EventID: 6, Rating: 0.4, Timestamp: ts(1)},
			},
			similarities: []store.Similarity{
				{EventA: 1, EventB: 6, Score: 0.0, Timestamp: ts(0)},
			},
		}
		got, err := newTestEngine(fs).RecommendForUser(ctx, 1, 10)
		if err != nil {
			t.Fatalf("RecommendForUser() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("RecommendForUser() = %v, want no prediction without weight", got)
		}
	})

	t.Run("max results truncates shortlist", func(t *testing.T) {
		e := newTestEngine(referenceStore())
		got, err := e.RecommendForUser(ctx, 1, 1)
		if err != nil {
			t.Fatalf("RecommendForUser() error = %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("RecommendForUser(max=1) = %v, want 1 result", got)
		}
		// The single shortlist slot goes to the strongest cross pair (1,4).
		if got[0].EventID != 4 {
			t.Errorf("results[0].EventID = %d, want 4", got[0].EventID)
		}
	})
}

func TestRecentEventIDsBreaksTimestampTiesByEventID(t *testing.T) {
	// Same timestamp for every row: the anchor set must come out in
	// ascending event-ID order, not the order the store returned rows in.
	history := []store.Interaction{
		{UserID: 1, EventID: 9, Rating: 0.4, Timestamp: ts(1)},
		{UserID: 1, EventID: 3, Rating: 0.8, Timestamp: ts(1)},
		{UserID: 1, EventID: 7, Rating: 1.0, Timestamp: ts(1)},
	}

	got := recentEventIDs(history, 2)
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Errorf("recentEventIDs() = %v, want [3 7]", got)
	}

	// A strictly newer interaction still wins over any tied pair.
	history = append(history, store.Interaction{UserID: 1, EventID: 5, Rating: 0.4, Timestamp: ts(2)})
	got = recentEventIDs(history, 2)
	if len(got) != 2 || got[0] != 5 || got[1] != 3 {
		t.Errorf("recentEventIDs() = %v, want [5 3]", got)
	}
}

func TestSimilarEvents(t *testing.T) {
	ctx := context.Background()

	got, err := newTestEngine(referenceStore()).SimilarEvents(ctx, 1, 4, 10)
	if err != nil {
		t.Fatalf("SimilarEvents() error = %v", err)
	}

	// Pairs touching event 4: (1,4,0.9), (2,4,0.5), (4,5,0.3). User 1 has
	// interacted with 1 and 2 but never 4, so nothing is filtered.
	want := []RecommendedEvent{{EventID: 1, Score: 0.9}, {EventID: 2, Score: 0.5}, {EventID: 5, Score: 0.3}}
	if len(got) != len(want) {
		t.Fatalf("SimilarEvents() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("results[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSimilarEventsFiltersFullyCoveredPairs(t *testing.T) {
	ctx := context.Background()

	// User 2 interacted with both 4 and 5, so the (4,5) pair is noise
	// for them; the pairs reaching into unseen events remain.
	got, err := newTestEngine(referenceStore()).SimilarEvents(ctx, 2, 4, 10)
	if err != nil {
		t.Fatalf("SimilarEvents() error = %v", err)
	}
	for _, r := range got {
		if r.EventID == 5 {
			t.Errorf("SimilarEvents() returned fully covered pair partner 5: %v", got)
		}
	}
	if len(got) != 2 {
		t.Errorf("SimilarEvents() = %v, want 2 results", got)
	}
}

func TestSimilarEventsLimit(t *testing.T) {
	ctx := context.Background()

	got, err := newTestEngine(referenceStore()).SimilarEvents(ctx, 1, 4, 1)
	if err != nil {
		t.Fatalf("SimilarEvents() error = %v", err)
	}
	if len(got) != 1 || got[0].EventID != 1 {
		t.Errorf("SimilarEvents(max=1) = %v, want single best partner 1", got)
	}
}

func TestInteractionTotals(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(referenceStore())

	got, err := e.InteractionTotals(ctx, []int64{4, 5, 77})
	if err != nil {
		t.Fatalf("InteractionTotals() error = %v", err)
	}

	// Event 4: 0.8 + 1.0 = 1.8; event 5: 0.4; event 77: never seen.
	want := []RecommendedEvent{{EventID: 4, Score: 1.8}, {EventID: 5, Score: 0.4}, {EventID: 77, Score: 0}}
	if len(got) != len(want) {
		t.Fatalf("InteractionTotals() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("results[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestInteractionTotalsEmptyInput(t *testing.T) {
	got, err := newTestEngine(referenceStore()).InteractionTotals(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("InteractionTotals(nil) = %v, %v, want nil, nil", got, err)
	}
}
