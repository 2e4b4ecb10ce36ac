// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package stream

import (
	"testing"
	"time"
)

func TestUnmarshalUserAction(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    UserAction
		wantErr bool
	}{
		{
			name: "valid record",
			data: `{"user_id":42,"event_id":7,"action_type":"like","timestamp":"2026-08-30T12:00:00Z"}`,
			want: UserAction{UserID: 42, EventID: 7, ActionType: ActionLike},
		},
		{
			name:    "truncated payload",
			data:    `{"user_id":42,"event_`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			data:    `user_id=42 event_id=7`,
			wantErr: true,
		},
		{
			name:    "missing identifiers",
			data:    `{"action_type":"view","timestamp":"2026-08-30T12:00:00Z"}`,
			wantErr: true,
		},
		{
			name: "unknown action type decodes",
			data: `{"user_id":1,"event_id":2,"action_type":"SHARE","timestamp":"2026-08-30T12:00:00Z"}`,
			want: UserAction{UserID: 1, EventID: 2, ActionType: "SHARE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalUserAction([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("UnmarshalUserAction() = nil error, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalUserAction() error = %v", err)
			}
			if got.UserID != tt.want.UserID || got.EventID != tt.want.EventID || got.ActionType != tt.want.ActionType {
				t.Errorf("UnmarshalUserAction() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSimilarityRoundTrip(t *testing.T) {
	sim := EventSimilarity{
		EventA:    3,
		EventB:    11,
		Score:     0.72,
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	data, err := MarshalSimilarity(&sim)
	if err != nil {
		t.Fatalf("MarshalSimilarity() error = %v", err)
	}

	got, err := UnmarshalSimilarity(data)
	if err != nil {
		t.Fatalf("UnmarshalSimilarity() error = %v", err)
	}
	if *got != sim {
		t.Errorf("round trip = %+v, want %+v", *got, sim)
	}
}

func TestMarshalSimilarityRejectsInvalid(t *testing.T) {
	sim := EventSimilarity{EventA: 11, EventB: 3, Score: 0.5, Timestamp: time.Now()}
	if _, err := MarshalSimilarity(&sim); err == nil {
		t.Error("MarshalSimilarity() accepted an unordered pair")
	}
}

func TestConsumerConfigDefaults(t *testing.T) {
	cfg := ConsumerConfig{Stream: "ACTIONS", Subject: "stats.user-actions", Durable: "agg"}.withDefaults()

	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.PollTimeout != 100*time.Millisecond {
		t.Errorf("PollTimeout = %v, want 100ms", cfg.PollTimeout)
	}
	if cfg.CommitEvery != 10 {
		t.Errorf("CommitEvery = %d, want 10", cfg.CommitEvery)
	}
	if cfg.AckWait != 30*time.Second {
		t.Errorf("AckWait = %v, want 30s", cfg.AckWait)
	}
}
