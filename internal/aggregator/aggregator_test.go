// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package aggregator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/eventstats/affinity/internal/stream"
)

func newTestAggregator() *Aggregator {
	a := New()
	a.clock = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return a
}

func apply(a *Aggregator, userID, eventID int64, t stream.ActionType) []stream.EventSimilarity {
	return a.Apply(&stream.UserAction{
		UserID:     userID,
		EventID:    eventID,
		ActionType: t,
		Timestamp:  time.Now(),
	})
}

func TestApplyFirstInteractionProducesNothing(t *testing.T) {
	a := newTestAggregator()

	if got := apply(a, 1, 1, stream.ActionView); len(got) != 0 {
		t.Errorf("Apply on lone event = %v, want none", got)
	}
}

func TestApplySharedUserProducesPair(t *testing.T) {
	a := newTestAggregator()

	apply(a, 1, 1, stream.ActionView)
	got := apply(a, 1, 2, stream.ActionView)

	if len(got) != 1 {
		t.Fatalf("Apply = %d updates, want 1", len(got))
	}
	sim := got[0]
	if sim.EventA != 1 || sim.EventB != 2 {
		t.Errorf("pair = (%d,%d), want (1,2)", sim.EventA, sim.EventB)
	}
	// Identical single-user vectors: min-sum 0.4 over norms sqrt(0.4)*sqrt(0.4).
	if sim.Score != 1.0 {
		t.Errorf("score = %v, want 1.0", sim.Score)
	}
}

func TestApplyScoresRoundedHalfUp(t *testing.T) {
	a := newTestAggregator()

	apply(a, 1, 1, stream.ActionView)     // e1: u1=0.4
	apply(a, 1, 2, stream.ActionView)     // e2: u1=0.4
	apply(a, 2, 1, stream.ActionLike)     // e1: u2=1.0
	got := apply(a, 2, 2, stream.ActionRegister) // e2: u2=0.8

	if len(got) != 1 {
		t.Fatalf("Apply = %d updates, want 1", len(got))
	}
	// min-sum 0.4+0.8 = 1.2 over sqrt(1.2)*sqrt(1.4) = 0.9258 -> 0.93.
	if got[0].Score != 0.93 {
		t.Errorf("score = %v, want 0.93", got[0].Score)
	}

	// The cache keeps the unrounded value.
	cached := a.Matrix().Similarity(1, 2)
	if want := 1.2 / (math.Sqrt(1.2) * math.Sqrt(1.4)); math.Abs(cached-want) > 1e-9 {
		t.Errorf("cached similarity = %v, want %v", cached, want)
	}
}

func TestApplyWeakerActionIsNoop(t *testing.T) {
	a := newTestAggregator()

	apply(a, 1, 1, stream.ActionLike)
	apply(a, 1, 2, stream.ActionLike)

	if got := apply(a, 1, 1, stream.ActionView); got != nil {
		t.Errorf("weaker repeat produced %v, want nil", got)
	}
	if got := apply(a, 1, 1, stream.ActionLike); got != nil {
		t.Errorf("equal repeat produced %v, want nil", got)
	}
}

func TestApplyUpgradeRescoresSharedPairs(t *testing.T) {
	a := newTestAggregator()

	apply(a, 1, 1, stream.ActionView)
	apply(a, 1, 2, stream.ActionRegister)

	got := apply(a, 1, 1, stream.ActionLike)
	if len(got) != 1 {
		t.Fatalf("Apply = %d updates, want 1", len(got))
	}
	// e1: u1=1.0, e2: u1=0.8; min-sum 0.8 over sqrt(1.0)*sqrt(0.8) = 0.8944 -> 0.89.
	if got[0].Score != 0.89 {
		t.Errorf("score = %v, want 0.89", got[0].Score)
	}
}

func TestApplyUnknownActionNeverScores(t *testing.T) {
	a := newTestAggregator()

	apply(a, 1, 1, stream.ActionView)
	if got := apply(a, 1, 2, "SHARE"); len(got) != 0 {
		t.Errorf("zero-rated action produced %v, want none", got)
	}
	// A later real action on the same event still works.
	if got := apply(a, 1, 2, stream.ActionView); len(got) != 1 {
		t.Errorf("follow-up view produced %d updates, want 1", len(got))
	}
}

func TestApplyOnlyTouchesPairsSharingUser(t *testing.T) {
	a := newTestAggregator()

	apply(a, 1, 1, stream.ActionView)
	apply(a, 2, 2, stream.ActionView)
	apply(a, 2, 3, stream.ActionView)

	// u1 touches e2: only pair (1,2) shares u1, never (2,3) or (1,3).
	got := apply(a, 1, 2, stream.ActionView)
	if len(got) != 1 || got[0].EventA != 1 || got[0].EventB != 2 {
		t.Errorf("Apply = %v, want single (1,2) update", got)
	}
}

func TestRoundScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.9258, 0.93},
		{0.8944, 0.89},
		{1.0, 1.0},
		{0.004, 0.0},
		{0.006, 0.01},
	}

	for _, tt := range tests {
		if got := roundScore(tt.in); got != tt.want {
			t.Errorf("roundScore(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type fakePublisher struct {
	published [][]stream.EventSimilarity
	err       error
}

func (f *fakePublisher) PublishSimilarities(ctx context.Context, sims []stream.EventSimilarity) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, sims)
	return nil
}

func TestHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed record is dropped", func(t *testing.T) {
		a := newTestAggregator()
		h := a.Handler(&fakePublisher{})

		err := h(ctx, []byte(`{"user_id":`))
		if !errors.Is(err, stream.ErrDropRecord) {
			t.Errorf("handler error = %v, want ErrDropRecord", err)
		}
	})

	t.Run("publishes triggered updates", func(t *testing.T) {
		a := newTestAggregator()
		pub := &fakePublisher{}
		h := a.Handler(pub)

		if err := h(ctx, mustAction(t, 1, 1, stream.ActionView)); err != nil {
			t.Fatalf("first action: %v", err)
		}
		if len(pub.published) != 0 {
			t.Fatalf("published %d batches before any pair exists", len(pub.published))
		}

		if err := h(ctx, mustAction(t, 1, 2, stream.ActionView)); err != nil {
			t.Fatalf("second action: %v", err)
		}
		if len(pub.published) != 1 || len(pub.published[0]) != 1 {
			t.Fatalf("published = %v, want one batch of one update", pub.published)
		}
	})

	t.Run("publish failure is retryable", func(t *testing.T) {
		a := newTestAggregator()
		h := a.Handler(&fakePublisher{err: errors.New("broker down")})

		if err := h(ctx, mustAction(t, 1, 1, stream.ActionView)); err != nil {
			t.Fatalf("first action: %v", err)
		}
		err := h(ctx, mustAction(t, 1, 2, stream.ActionView))
		if err == nil {
			t.Fatal("handler = nil error, want publish failure")
		}
		if errors.Is(err, stream.ErrDropRecord) || errors.Is(err, stream.ErrDiscardRecord) {
			t.Errorf("publish failure classified as %v, want retryable", err)
		}
	})
}

func mustAction(t *testing.T, userID, eventID int64, at stream.ActionType) []byte {
	t.Helper()
	data, err := stream.MarshalUserAction(&stream.UserAction{
		UserID:     userID,
		EventID:    eventID,
		ActionType: at,
		Timestamp:  time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal action: %v", err)
	}
	return data
}
