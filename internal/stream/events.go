// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

// Package stream provides the JetStream transport for the recommendation
// pipeline: wire types, stream provisioning, the similarity publisher, and
// the pull consumer with batched cumulative acks.
package stream

import (
	"fmt"
	"time"
)

// ActionType identifies the kind of user interaction carried by a UserAction.
type ActionType string

// Known action types. Anything else maps to a zero rating downstream.
const (
	ActionView     ActionType = "view"
	ActionRegister ActionType = "register"
	ActionLike     ActionType = "like"
)

// Rating maps the action type to its implicit-feedback rating. Stronger
// engagement rates higher; unrecognized types rate zero so a producer
// rolling out a new action type cannot skew the similarity model.
func (t ActionType) Rating() float64 {
	switch t {
	case ActionView:
		return 0.4
	case ActionRegister:
		return 0.8
	case ActionLike:
		return 1.0
	default:
		return 0.0
	}
}

// UserAction is one user interaction with an event, as carried on the
// actions log. Producers are the platform's CRUD services; the aggregator
// and the analyzer both consume it.
type UserAction struct {
	UserID     int64      `json:"user_id"`
	EventID    int64      `json:"event_id"`
	ActionType ActionType `json:"action_type"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Validate reports whether the action identifies a real (user, event) pair.
// Zero or negative identifiers are the wire-level equivalent of missing
// fields and make the record undeliverable.
func (a *UserAction) Validate() error {
	if a.UserID <= 0 {
		return fmt.Errorf("user action: missing user_id")
	}
	if a.EventID <= 0 {
		return fmt.Errorf("user action: missing event_id")
	}
	return nil
}

// EventSimilarity is one pairwise similarity score on the similarity log.
// EventA is always the smaller event ID; the aggregator normalizes the pair
// before publishing.
type EventSimilarity struct {
	EventA    int64     `json:"event_a"`
	EventB    int64     `json:"event_b"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate enforces the pair invariant: distinct events, ascending order,
// score within [0,1].
func (s *EventSimilarity) Validate() error {
	if s.EventA <= 0 || s.EventB <= 0 {
		return fmt.Errorf("event similarity: missing event id")
	}
	if s.EventA == s.EventB {
		return fmt.Errorf("event similarity: identical events %d", s.EventA)
	}
	if s.EventA > s.EventB {
		return fmt.Errorf("event similarity: pair (%d,%d) not ordered", s.EventA, s.EventB)
	}
	if s.Score < 0 || s.Score > 1 {
		return fmt.Errorf("event similarity: score %f out of range", s.Score)
	}
	return nil
}
