// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values that would fail at runtime.
// It is called by Load() after all sources are merged.
func (c *Config) Validate() error {
	var problems []string

	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		problems = append(problems, "nats.url is required when the embedded server is disabled")
	}
	if c.NATS.ActionsStream == "" || c.NATS.ActionsSubject == "" {
		problems = append(problems, "nats.actions_stream and nats.actions_subject are required")
	}
	if c.NATS.SimilarityStream == "" || c.NATS.SimilaritySubject == "" {
		problems = append(problems, "nats.similarity_stream and nats.similarity_subject are required")
	}
	if c.NATS.Replicas < 1 {
		problems = append(problems, "nats.replicas must be at least 1")
	}

	if c.Consumer.DurableName == "" {
		problems = append(problems, "consumer.durable_name is required")
	}
	if c.Consumer.BatchSize <= 0 {
		problems = append(problems, "consumer.batch_size must be positive")
	}
	if c.Consumer.PollTimeout <= 0 {
		problems = append(problems, "consumer.poll_timeout must be positive")
	}
	if c.Consumer.CommitEvery <= 0 {
		problems = append(problems, "consumer.commit_every must be positive")
	}

	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}

	if c.Recommend.Neighbors <= 0 {
		problems = append(problems, "recommend.neighbors must be positive")
	}
	if c.Recommend.MaxResultsLimit <= 0 {
		problems = append(problems, "recommend.max_results_limit must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not json or console", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
