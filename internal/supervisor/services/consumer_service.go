// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package services

import (
	"context"
	"errors"
)

// Runner is the blocking run loop of a stream consumer.
type Runner interface {
	Run(ctx context.Context) error
}

// ConsumerService supervises one consumer loop. A loop that dies with a
// real error is restarted by suture; context cancellation passes through
// as a normal stop.
type ConsumerService struct {
	name   string
	runner Runner
}

// NewConsumerService wraps a consumer run loop as a supervised service.
func NewConsumerService(name string, runner Runner) *ConsumerService {
	return &ConsumerService{name: name, runner: runner}
}

// Serve implements suture.Service.
func (s *ConsumerService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func (s *ConsumerService) String() string {
	return s.name
}
