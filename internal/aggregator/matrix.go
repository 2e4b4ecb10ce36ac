// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

// Package aggregator maintains the in-memory user/event weight matrix and
// derives pairwise event similarity updates from the action stream.
package aggregator

import (
	"math"
	"sort"
	"sync"

	"github.com/eventstats/affinity/internal/metrics"
)

const numShards = 32

// matrixShard holds the weight rows for a subset of events. Each row maps
// userID to the highest rating that user has produced for the event, with
// the running weight sum kept alongside so the norm is O(1).
type matrixShard struct {
	mu   sync.RWMutex
	rows map[int64]map[int64]float64
	sums map[int64]float64
}

// Matrix is the sharded user/event weight matrix. Rows are striped across
// shards by event ID so concurrent appliers contend only when they touch
// events in the same stripe, and no operation ever holds two shard locks.
type Matrix struct {
	shards [numShards]matrixShard

	// userEvents indexes which events each user has interacted with,
	// which bounds the partner scan to events sharing the triggering
	// user instead of the whole matrix.
	userMu     sync.RWMutex
	userEvents map[int64]map[int64]struct{}

	// sims caches the latest unrounded similarity per ordered pair.
	simMu sync.RWMutex
	sims  map[pairKey]float64
}

type pairKey struct {
	a, b int64
}

func orderPair(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// NewMatrix returns an empty weight matrix.
func NewMatrix() *Matrix {
	m := &Matrix{
		userEvents: make(map[int64]map[int64]struct{}),
		sims:       make(map[pairKey]float64),
	}
	for i := range m.shards {
		m.shards[i].rows = make(map[int64]map[int64]float64)
		m.shards[i].sums = make(map[int64]float64)
	}
	return m
}

func (m *Matrix) shard(eventID int64) *matrixShard {
	return &m.shards[uint64(eventID)%numShards]
}

// UpsertMax raises the stored weight for (eventID, userID) to w. Weights
// are monotonic: a weaker action after a stronger one changes nothing.
// Returns true when the stored weight changed.
func (m *Matrix) UpsertMax(eventID, userID int64, w float64) bool {
	s := m.shard(eventID)
	s.mu.Lock()
	row, ok := s.rows[eventID]
	if !ok {
		row = make(map[int64]float64)
		s.rows[eventID] = row
		metrics.MatrixTrackedEvents.Inc()
	}
	current, seen := row[userID]
	if seen && w <= current {
		s.mu.Unlock()
		return false
	}
	row[userID] = w
	s.sums[eventID] += w - current
	s.mu.Unlock()

	m.userMu.Lock()
	events, ok := m.userEvents[userID]
	if !ok {
		events = make(map[int64]struct{})
		m.userEvents[userID] = events
	}
	events[eventID] = struct{}{}
	m.userMu.Unlock()

	return true
}

// Weight returns the stored weight for (eventID, userID), zero when absent.
func (m *Matrix) Weight(eventID, userID int64) float64 {
	s := m.shard(eventID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows[eventID][userID]
}

// Norm returns sqrt of the event's weight sum, zero for unknown events.
func (m *Matrix) Norm(eventID int64) float64 {
	s := m.shard(eventID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return math.Sqrt(s.sums[eventID])
}

// Snapshot copies the event's weight row together with its norm. The copy
// lets callers compare it against other rows without holding two shard
// locks at once.
func (m *Matrix) Snapshot(eventID int64) (map[int64]float64, float64) {
	s := m.shard(eventID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[eventID]
	if !ok {
		return nil, 0
	}
	cp := make(map[int64]float64, len(row))
	for u, w := range row {
		cp[u] = w
	}
	return cp, math.Sqrt(s.sums[eventID])
}

// Overlap computes the min-sum between the given snapshot vector and the
// stored row of eventID, along with that event's norm.
func (m *Matrix) Overlap(eventID int64, vec map[int64]float64) (sumMin, norm float64) {
	s := m.shard(eventID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[eventID]
	if !ok {
		return 0, 0
	}

	// Iterate the smaller side.
	small, large := vec, row
	if len(row) < len(vec) {
		small, large = row, vec
	}
	for u, w := range small {
		if other, ok := large[u]; ok {
			sumMin += math.Min(w, other)
		}
	}
	return sumMin, math.Sqrt(s.sums[eventID])
}

// EventsOfUser lists the events the user has interacted with, sorted for
// deterministic output order.
func (m *Matrix) EventsOfUser(userID int64) []int64 {
	m.userMu.RLock()
	set := m.userEvents[userID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	m.userMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PutSimilarity caches the latest unrounded similarity for the pair.
func (m *Matrix) PutSimilarity(eventA, eventB int64, sim float64) {
	key := orderPair(eventA, eventB)
	m.simMu.Lock()
	m.sims[key] = sim
	m.simMu.Unlock()
}

// Similarity returns the cached similarity for the pair, zero when the
// pair has never been scored.
func (m *Matrix) Similarity(eventA, eventB int64) float64 {
	key := orderPair(eventA, eventB)
	m.simMu.RLock()
	defer m.simMu.RUnlock()
	return m.sims[key]
}
