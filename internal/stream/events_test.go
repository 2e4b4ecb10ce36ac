// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package stream

import (
	"strings"
	"testing"
	"time"
)

func TestUserActionValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		action  UserAction
		wantErr string
	}{
		{
			name:   "valid view",
			action: UserAction{UserID: 1, EventID: 2, ActionType: ActionView, Timestamp: now},
		},
		{
			name:   "valid like",
			action: UserAction{UserID: 7, EventID: 9, ActionType: ActionLike, Timestamp: now},
		},
		{
			name:    "missing user",
			action:  UserAction{EventID: 2, ActionType: ActionView, Timestamp: now},
			wantErr: "user_id",
		},
		{
			name:    "negative event",
			action:  UserAction{UserID: 1, EventID: -4, ActionType: ActionView, Timestamp: now},
			wantErr: "event_id",
		},
		{
			name:   "unknown action type is accepted",
			action: UserAction{UserID: 1, EventID: 2, ActionType: "SHARE", Timestamp: now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestActionTypeRating(t *testing.T) {
	tests := []struct {
		action ActionType
		want   float64
	}{
		{ActionView, 0.4},
		{ActionRegister, 0.8},
		{ActionLike, 1.0},
		{"SHARE", 0.0},
		{"", 0.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			if got := tt.action.Rating(); got != tt.want {
				t.Errorf("Rating(%q) = %v, want %v", tt.action, got, tt.want)
			}
		})
	}
}

func TestEventSimilarityValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		sim     EventSimilarity
		wantErr bool
	}{
		{
			name: "valid pair",
			sim:  EventSimilarity{EventA: 1, EventB: 2, Score: 0.37, Timestamp: now},
		},
		{
			name: "boundary scores",
			sim:  EventSimilarity{EventA: 1, EventB: 2, Score: 1.0, Timestamp: now},
		},
		{
			name:    "same event on both sides",
			sim:     EventSimilarity{EventA: 5, EventB: 5, Score: 0.5, Timestamp: now},
			wantErr: true,
		},
		{
			name:    "descending pair",
			sim:     EventSimilarity{EventA: 9, EventB: 2, Score: 0.5, Timestamp: now},
			wantErr: true,
		},
		{
			name:    "score above one",
			sim:     EventSimilarity{EventA: 1, EventB: 2, Score: 1.01, Timestamp: now},
			wantErr: true,
		},
		{
			name:    "negative score",
			sim:     EventSimilarity{EventA: 1, EventB: 2, Score: -0.01, Timestamp: now},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sim.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
