// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package services

import (
	"context"
	"fmt"
	"time"
)

// Broker matches the embedded NATS server lifecycle.
type Broker interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// NATSService supervises an already-started embedded broker: it watches
// health while the context lives and shuts the broker down on exit. If
// the broker dies underneath us, returning an error makes suture restart
// the whole messaging layer, which reconnects the consumers.
type NATSService struct {
	broker        Broker
	checkInterval time.Duration
}

// NewNATSService wraps the embedded broker as a supervised service.
func NewNATSService(broker Broker) *NATSService {
	return &NATSService{
		broker:        broker,
		checkInterval: 5 * time.Second,
	}
}

// Serve implements suture.Service.
func (s *NATSService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.broker.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("broker shutdown: %w", err)
			}
			return ctx.Err()

		case <-ticker.C:
			if !s.broker.IsRunning() {
				return fmt.Errorf("embedded broker stopped unexpectedly")
			}
		}
	}
}

func (s *NATSService) String() string {
	return "embedded-nats"
}
