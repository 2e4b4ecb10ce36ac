// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package stream

import (
	"time"
)

// ServerConfig holds embedded NATS server settings.
type ServerConfig struct {
	Host string
	Port int

	// StoreDir is the JetStream file storage directory.
	StoreDir string

	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// StreamConfig describes one JetStream stream to provision.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
	Replicas int
}

// ConnConfig holds client connection settings shared by publisher and
// consumers.
type ConnConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// PublisherConfig holds similarity publisher settings.
type PublisherConfig struct {
	Conn ConnConfig

	// Topic is the subject similarity updates are published to.
	Topic string

	// BreakerEnabled wraps publishes in a circuit breaker so a broker outage
	// fails fast instead of piling up blocked publishes.
	BreakerEnabled bool
}

// ConsumerConfig holds settings for one durable pull consumer.
type ConsumerConfig struct {
	// Stream is the JetStream stream to consume; Subject filters it.
	Stream  string
	Subject string

	// Durable names the server-side cursor. Distinct consumer roles
	// (aggregator, analyzer-actions, analyzer-similarity) use distinct
	// durable names so each keeps its own position.
	Durable string

	// BatchSize bounds one fetch; PollTimeout bounds how long a fetch blocks
	// when the log is idle so shutdown is observed promptly.
	BatchSize   int
	PollTimeout time.Duration

	// CommitEvery batches cumulative acks: one ack every N accepted records
	// plus one at the end of every non-empty batch. Larger values widen the
	// redelivery window after a crash; downstream upserts are idempotent so
	// re-processing is safe.
	CommitEvery int

	AckWait    time.Duration
	MaxDeliver int
}

// withDefaults fills zero values with reference settings.
func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 100 * time.Millisecond
	}
	if c.CommitEvery <= 0 {
		c.CommitEvery = 10
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	return c
}
