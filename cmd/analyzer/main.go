// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

// Package main is the entry point for the Affinity analyzer service.
//
// The analyzer persists user actions and event similarity scores from the two
// JetStream logs into DuckDB and serves recommendation queries over HTTP.
//
// # Application Architecture
//
// The service initializes components in the following order:
//
//  1. Configuration: load settings from config file and environment (Koanf v2)
//  2. Database: open DuckDB and provision the interactions and similarities tables
//  3. NATS: connect to the broker, or start an embedded JetStream server
//  4. Consumers: two durable pull consumers, one per stream, with distinct
//     durable names so each keeps its own position
//  5. Query Engine: weighted KNN recommendation engine over the two tables
//  6. HTTP Server: REST API with rate limiting and Prometheus metrics
//
// # HTTP API
//
//	GET /api/v1/health
//	GET /api/v1/users/{userID}/recommendations?max_results=N
//	GET /api/v1/events/{eventID}/similar?user_id=U&max_results=N
//	GET /api/v1/events/interactions?event_ids=1,2,3
//	GET /metrics
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: both consumers finish their
// current batch and commit their final position synchronously, the HTTP
// server drains in-flight requests, and the database is closed last.
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

	"github.com/eventstats/affinity/internal/analyzer"
	"github.com/eventstats/affinity/internal/api"
	"github.com/eventstats/affinity/internal/config"
	"github.com/eventstats/affinity/internal/logging"
	"github.com/eventstats/affinity/internal/recommend"
	"github.com/eventstats/affinity/internal/store"
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

	logging.Info().Msg("Starting Affinity analyzer with supervisor tree")
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("nats_url", cfg.NATS.URL).
		Bool("embedded_nats", cfg.NATS.EmbeddedServer).
		Msg("Configuration loaded")

	db, err := store.Open(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		logging.Info().Str("url", natsURL).Msg("Embedded JetStream server started")
	}

	nc, err := stream.Connect(stream.ConnConfig{
		URL:           natsURL,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	})
	if err != nil {
		logging.Fatal().Err(err).Str("url", natsURL).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	mgr, err := stream.NewManager(nc)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JetStream")
	}

	// Provision both streams before binding consumers. EnsureStream is
	// idempotent, so it does not matter whether the aggregator got here first.
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
	}

	actionsConsumer, err := stream.NewConsumer(ctx, mgr.JetStream(), stream.ConsumerConfig{
		Stream:      cfg.NATS.ActionsStream,
		Subject:     cfg.NATS.ActionsSubject,
		Durable:     fmt.Sprintf("%s-analyzer-actions", cfg.Consumer.DurableName),
		BatchSize:   cfg.Consumer.BatchSize,
		PollTimeout: cfg.Consumer.PollTimeout,
		CommitEvery: cfg.Consumer.CommitEvery,
		AckWait:     cfg.Consumer.AckWait,
		MaxDeliver:  cfg.Consumer.MaxDeliver,
	}, analyzer.ActionHandler(db))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create actions consumer")
	}

	similarityConsumer, err := stream.NewConsumer(ctx, mgr.JetStream(), stream.ConsumerConfig{
		Stream:      cfg.NATS.SimilarityStream,
		Subject:     cfg.NATS.SimilaritySubject,
		Durable:     fmt.Sprintf("%s-analyzer-similarity", cfg.Consumer.DurableName),
		BatchSize:   cfg.Consumer.BatchSize,
		PollTimeout: cfg.Consumer.PollTimeout,
		CommitEvery: cfg.Consumer.CommitEvery,
		AckWait:     cfg.Consumer.AckWait,
		MaxDeliver:  cfg.Consumer.MaxDeliver,
	}, analyzer.SimilarityHandler(db))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create similarity consumer")
	}

	engine := recommend.NewEngine(db, db, recommend.Config{
		Neighbors:       cfg.Recommend.Neighbors,
		MaxResultsLimit: cfg.Recommend.MaxResultsLimit,
	}, logging.Logger())

	handler := api.NewHandler(engine, db)
	router := api.NewRouter(handler, &cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree("analyzer", logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	if embedded != nil {
		tree.AddMessagingService(services.NewNATSService(embedded))
	}
	tree.AddMessagingService(services.NewConsumerService("actions-consumer", actionsConsumer))
	tree.AddMessagingService(services.NewConsumerService("similarity-consumer", similarityConsumer))
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

	logging.Info().Msg("Analyzer stopped gracefully")
}
