// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the recommendation pipeline:
// - Stream consumption (per-topic accept/discard/drop counts, ack failures)
// - Similarity publishing
// - Store upserts and query latency (DuckDB)
// - Query API latency and throughput

var (
	// Stream Consumption Metrics
	StreamRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_records_total",
			Help: "Total stream records by topic and outcome",
		},
		[]string{"topic", "outcome"}, // "accepted", "discarded", "dropped"
	)

	StreamCommitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_commit_failures_total",
			Help: "Total failed offset commits (cumulative acks)",
		},
		[]string{"topic"},
	)

	StreamHandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_handler_duration_seconds",
			Help:    "Duration of per-record handler invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	// Similarity Pipeline Metrics
	SimilarityUpdatesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "similarity_updates_published_total",
			Help: "Total similarity updates published to the stream",
		},
	)

	SimilarityPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "similarity_publish_errors_total",
			Help: "Total failed similarity update publishes",
		},
	)

	MatrixTrackedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aggregator_tracked_events",
			Help: "Current number of events with weight vectors in the aggregator",
		},
	)

	// Store Metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	StoreUpsertRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_upsert_rows_total",
			Help: "Upsert outcomes by table",
		},
		[]string{"table", "outcome"}, // "written", "noop"
	)

	// Query API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordStreamRecord increments the per-topic record counter.
func RecordStreamRecord(topic, outcome string) {
	StreamRecordsTotal.WithLabelValues(topic, outcome).Inc()
}

// RecordCommitFailure increments the per-topic commit failure counter.
func RecordCommitFailure(topic string) {
	StreamCommitFailures.WithLabelValues(topic).Inc()
}

// ObserveHandler records the duration of one handler invocation.
func ObserveHandler(topic string, start time.Time) {
	StreamHandlerDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
}

// RecordUpsert records an upsert outcome for a table.
func RecordUpsert(table string, rowsAffected int64) {
	outcome := "noop"
	if rowsAffected > 0 {
		outcome = "written"
	}
	StoreUpsertRows.WithLabelValues(table, outcome).Inc()
}

// ObserveStoreQuery records query duration and any error for an operation.
func ObserveStoreQuery(operation, table string, start time.Time, err error) {
	StoreQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
