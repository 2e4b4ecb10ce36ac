// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package stream

import (
	"fmt"

	"github.com/goccy/go-json"
)

// MarshalUserAction encodes a user action for the actions log.
func MarshalUserAction(a *UserAction) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("validate action: %w", err)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}

	return data, nil
}

// UnmarshalUserAction decodes a user action from the actions log.
// A decodable payload with missing identifiers is still an error; callers
// drop such records.
func UnmarshalUserAction(data []byte) (*UserAction, error) {
	var a UserAction
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	return &a, nil
}

// MarshalSimilarity encodes a similarity update for the similarity log.
func MarshalSimilarity(s *EventSimilarity) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate similarity: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal similarity: %w", err)
	}

	return data, nil
}

// UnmarshalSimilarity decodes a similarity update from the similarity log.
func UnmarshalSimilarity(data []byte) (*EventSimilarity, error) {
	var s EventSimilarity
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal similarity: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}
