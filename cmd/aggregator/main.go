// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

// Package main is the entry point for the Affinity aggregator service.
//
// The aggregator consumes user actions from the ACTIONS stream, maintains the
// in-memory interaction matrix, and publishes recomputed event similarity
// scores to the SIMILARITY stream for the analyzer to persist.
//
// # Application Architecture
//
// The service initializes components in the following order:
//
//  1. Configuration: load settings from config file and environment (Koanf v2)
//  2. NATS: connect to the broker, or start an embedded JetStream server
//  3. Streams: provision the ACTIONS and SIMILARITY streams
//  4. Publisher: Watermill similarity publisher with circuit breaker
//  5. Consumer: durable pull consumer over the ACTIONS stream
//  6. HTTP: operational surface exposing /metrics and /health
//
// # Offset Semantics
//
// The consumer uses cumulative acks (AckAll) as commit points: one ack per ten
// handled records, one at the end of every non-empty poll, and a final
// synchronous ack on shutdown. Malformed records are dropped and the position
// still advances past them.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the consumer finishes its
// current batch and commits, the HTTP server drains in-flight requests, and
// the embedded broker (if any) is stopped last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventstats/affinity/internal/aggregator"
	"github.com/eventstats/affinity/internal/config"
	"github.com/eventstats/affinity/internal/logging"
	"github.com/eventstats/affinity/internal/stream"
	"github.com/eventstats/affinity/internal/supervisor"
	"github.com/eventstats/affinity/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Affinity aggregator with supervisor tree")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start an embedded JetStream server when configured; its client URL
	// overrides the configured broker URL so a single node needs no
	// external NATS deployment.
	var embedded *stream.EmbeddedServer
	natsURL := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		embedded, err = stream.NewEmbeddedServer(stream.ServerConfig{
			Host:              cfg.NATS.Host,
			Port:              cfg.NATS.Port,
			StoreDir:          cfg.NATS.StoreDir,
			JetStreamMaxMem:   cfg.NATS.MaxMemory,
			JetStreamMaxStore: cfg.NATS.MaxStore,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Str("store_dir", cfg.NATS.StoreDir).
			Msg("Embedded JetStream server started")
	}

	connCfg := stream.ConnConfig{
		URL:           natsURL,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}

	nc, err := stream.Connect(connCfg)
	if err != nil {
		logging.Fatal().Err(err).Str("url", natsURL).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	mgr, err := stream.NewManager(nc)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JetStream")
	}

	// Provision both streams. The aggregator owns the SIMILARITY stream
	// because it is the only producer on it.
	for _, sc := range []stream.StreamConfig{
		{
			Name:     cfg.NATS.ActionsStream,
			Subjects: []string{cfg.NATS.ActionsSubject},
			MaxAge:   cfg.NATS.RetentionAge,
			Replicas: cfg.NATS.Replicas,
		},
		{
			Name:     cfg.NATS.SimilarityStream,
			Subjects: []string{cfg.NATS.SimilaritySubject},
			MaxAge:   cfg.NATS.RetentionAge,
			Replicas: cfg.NATS.Replicas,
		},
	} {
		if _, err := mgr.EnsureStream(ctx, sc); err != nil {
			logging.Fatal().Err(err).Str("stream", sc.Name).Msg("Failed to provision stream")
		}
		logging.Info().Str("stream", sc.Name).Strs("subjects", sc.Subjects).Msg("Stream ready")
	}

	pub, err := stream.NewPublisher(stream.PublisherConfig{
		Conn:           connCfg,
		Topic:          cfg.NATS.SimilaritySubject,
		BreakerEnabled: cfg.NATS.BreakerEnabled,
	}, stream.NewWatermillLogger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create similarity publisher")
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing publisher")
		}
	}()

	agg := aggregator.New()

	consumer, err := stream.NewConsumer(ctx, mgr.JetStream(), stream.ConsumerConfig{
		Stream:      cfg.NATS.ActionsStream,
		Subject:     cfg.NATS.ActionsSubject,
		Durable:     fmt.Sprintf("%s-aggregator", cfg.Consumer.DurableName),
		BatchSize:   cfg.Consumer.BatchSize,
		PollTimeout: cfg.Consumer.PollTimeout,
		CommitEvery: cfg.Consumer.CommitEvery,
		AckWait:     cfg.Consumer.AckWait,
		MaxDeliver:  cfg.Consumer.MaxDeliver,
	}, agg.Handler(pub))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create actions consumer")
	}

	// Operational HTTP surface. The aggregator has no query API; it only
	// exposes Prometheus metrics and a liveness endpoint.
	opsRouter := chi.NewRouter()
	opsRouter.Use(middleware.Recoverer)
	opsRouter.Handle("/metrics", promhttp.Handler())
	opsRouter.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      opsRouter,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree("aggregator", logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if embedded != nil {
		tree.AddMessagingService(services.NewNATSService(embedded))
	}
	tree.AddMessagingService(services.NewConsumerService("actions-consumer", consumer))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Aggregator stopped gracefully")
}
