// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/eventstats/affinity/internal/logging"
	"github.com/eventstats/affinity/internal/metrics"
)

// Publisher sends similarity updates onto the similarity log. It wraps
// a Watermill NATS publisher with circuit breaker protection and uses
// message UUIDs as Nats-Msg-Id so broker-side deduplication absorbs
// publish retries.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[any]
	topic     string

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a publisher for the configured similarity topic.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.Conn.URL,
		NatsOptions: connOptions(cfg.Conn),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // streams are provisioned by Manager at startup
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	p := &Publisher{
		publisher: pub,
		topic:     cfg.Topic,
	}

	if cfg.BreakerEnabled {
		p.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:     "similarity-publisher",
			Interval: time.Minute,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("publisher circuit breaker state change")
			},
		})
	}

	return p, nil
}

// PublishSimilarity serializes and publishes one similarity update.
func (p *Publisher) PublishSimilarity(ctx context.Context, sim EventSimilarity) error {
	data, err := MarshalSimilarity(&sim)
	if err != nil {
		return fmt.Errorf("marshal similarity: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("event_a", fmt.Sprintf("%d", sim.EventA))
	msg.Metadata.Set("event_b", fmt.Sprintf("%d", sim.EventB))

	return p.publish(msg)
}

// PublishSimilarities publishes a batch of updates, stopping at the
// first failure. Partial publishes are acceptable: re-processing the
// triggering action regenerates the remainder and the last-write-wins
// store absorbs duplicates.
func (p *Publisher) PublishSimilarities(ctx context.Context, sims []EventSimilarity) error {
	for _, sim := range sims {
		if err := p.PublishSimilarity(ctx, sim); err != nil {
			return fmt.Errorf("publish similarity %d/%d: %w", sim.EventA, sim.EventB, err)
		}
	}
	return nil
}

func (p *Publisher) publish(msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	var err error
	if p.breaker != nil {
		_, err = p.breaker.Execute(func() (any, error) {
			return nil, p.publisher.Publish(p.topic, msg)
		})
	} else {
		err = p.publisher.Publish(p.topic, msg)
	}

	if err != nil {
		metrics.SimilarityPublishErrors.Inc()
		return err
	}
	metrics.SimilarityUpdatesPublished.Inc()
	return nil
}

// Close shuts the publisher down. Safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}
