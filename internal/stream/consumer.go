// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eventstats/affinity/internal/logging"
	"github.com/eventstats/affinity/internal/metrics"
)

// Handler sentinels. Any other non-nil error is treated as retryable:
// the consumer commits progress up to the previous record, requests
// redelivery of the failed one and backs off.
var (
	// ErrDropRecord marks a record as malformed. It is logged, counted
	// and skipped; the consumer position advances past it.
	ErrDropRecord = errors.New("drop record")

	// ErrDiscardRecord marks a well-formed record the handler chose not
	// to process, such as a self-referential similarity pair.
	ErrDiscardRecord = errors.New("discard record")
)

// Handler processes one raw record from the log.
type Handler func(ctx context.Context, data []byte) error

// Consumer is a durable JetStream pull consumer with AckAll policy.
// Cumulative acks stand in for offset commits: acking a message commits
// every message before it on the same consumer, so one ack per
// CommitEvery records (plus one at the end of each non-empty poll)
// bounds redelivery after a crash without per-message ack traffic.
// Downstream upserts are idempotent, so redelivered records are safe.
type Consumer struct {
	cfg      ConsumerConfig
	consumer jetstream.Consumer
	handler  Handler

	lastHandled jetstream.Msg
	sinceAck    int
}

// NewConsumer creates or updates the durable consumer on its stream.
func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg ConsumerConfig, handler Handler) (*Consumer, error) {
	cfg = cfg.withDefaults()

	cons, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckAllPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s on %s: %w", cfg.Durable, cfg.Stream, err)
	}

	return &Consumer{
		cfg:      cfg,
		consumer: cons,
		handler:  handler,
	}, nil
}

// Run polls the stream until the context is canceled, then commits the
// final position synchronously before returning. The returned error is
// the context's cancellation cause.
func (c *Consumer) Run(ctx context.Context) error {
	logging.Info().
		Str("stream", c.cfg.Stream).
		Str("durable", c.cfg.Durable).
		Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			c.finalCommit()
			logging.Info().Str("durable", c.cfg.Durable).Msg("consumer stopped")
			return ctx.Err()
		default:
		}

		batch, err := c.consumer.Fetch(c.cfg.BatchSize, jetstream.FetchMaxWait(c.cfg.PollTimeout))
		if err != nil {
			logging.Warn().Err(err).Str("durable", c.cfg.Durable).Msg("fetch failed")
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.PollTimeout):
			}
			continue
		}

		c.processBatch(ctx, batch)
	}
}

func (c *Consumer) processBatch(ctx context.Context, batch jetstream.MessageBatch) {
	for msg := range batch.Messages() {
		start := time.Now()
		err := c.handler(ctx, msg.Data())
		metrics.ObserveHandler(c.cfg.Stream, start)

		switch {
		case err == nil:
			metrics.RecordStreamRecord(c.cfg.Stream, "accepted")
		case errors.Is(err, ErrDropRecord):
			metrics.RecordStreamRecord(c.cfg.Stream, "dropped")
			logging.Warn().Err(err).Str("stream", c.cfg.Stream).Msg("malformed record dropped")
		case errors.Is(err, ErrDiscardRecord):
			metrics.RecordStreamRecord(c.cfg.Stream, "discarded")
			logging.Debug().Err(err).Str("stream", c.cfg.Stream).Msg("record discarded")
		default:
			// Retryable failure: commit progress up to the previous
			// record, put this one back and stop the batch.
			if c.lastHandled != nil && c.sinceAck > 0 {
				c.commit(c.lastHandled)
			}
			if nakErr := msg.Nak(); nakErr != nil {
				logging.Warn().Err(nakErr).Str("durable", c.cfg.Durable).Msg("nak failed")
			}
			logging.Error().Err(err).Str("stream", c.cfg.Stream).Msg("record handling failed, will retry")
			return
		}

		// Dropped and discarded records advance the position too so
		// they are not redelivered.
		c.lastHandled = msg
		c.sinceAck++
		if c.sinceAck >= c.cfg.CommitEvery {
			c.commit(msg)
		}
	}

	if err := batch.Error(); err != nil {
		logging.Warn().Err(err).Str("durable", c.cfg.Durable).Msg("batch error")
	}

	if c.sinceAck > 0 {
		c.commit(c.lastHandled)
	}
}

// commit acks msg asynchronously, committing every record up to and
// including it. Ack failure is logged and counted; the records stay
// in flight and an ack on a later message will cover them.
func (c *Consumer) commit(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		metrics.RecordCommitFailure(c.cfg.Stream)
		logging.Warn().Err(err).Str("durable", c.cfg.Durable).Msg("commit failed")
		return
	}
	c.sinceAck = 0
}

// finalCommit synchronously acks the last handled message so shutdown
// never loses committed progress.
func (c *Consumer) finalCommit() {
	if c.lastHandled == nil || c.sinceAck == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.lastHandled.DoubleAck(ctx); err != nil {
		metrics.RecordCommitFailure(c.cfg.Stream)
		logging.Error().Err(err).Str("durable", c.cfg.Durable).Msg("final commit failed")
		return
	}
	c.sinceAck = 0
}
