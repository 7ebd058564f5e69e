// Synclinic - Two-Way CRM and Clinical Intake Sync
// Copyright 2026 Synclinic Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/synclinic/synclinic

// Package metrics provides Prometheus instrumentation for the sync
// service: run and per-record outcomes, relay request results, circuit
// breaker state, and HTTP API traffic. Metrics are exposed at /metrics in
// Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync engine metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs by direction and result",
		},
		[]string{"direction", "result"}, // result: completed, aborted
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_total",
			Help: "Per-record sync outcomes",
		},
		[]string{"category", "action"}, // action: created, updated, skipped, failed
	)

	// Relay metrics
	RelayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Upstream relay requests by outcome",
		},
		[]string{"upstream", "outcome"}, // outcome: success, failure, rejected
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0=closed, 1=half-open, 2=open)",
		},
		[]string{"upstream"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"upstream", "from", "to"},
	)

	// Activity log metrics
	ActivityEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_entries_total",
			Help: "Activity log entries appended, by status",
		},
		[]string{"status"},
	)

	// HTTP API metrics
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
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordSyncRun records a finished run.
func RecordSyncRun(direction, result string, duration time.Duration) {
	SyncRunsTotal.WithLabelValues(direction, result).Inc()
	SyncRunDuration.Observe(duration.Seconds())
}

// RecordOutcome records one per-record sync outcome.
func RecordOutcome(category, action string) {
	SyncRecordsTotal.WithLabelValues(category, action).Inc()
}
