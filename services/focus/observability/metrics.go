// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the focus service.
//
// # Description
//
// Metrics cover session lifecycle (creations, transitions by action and
// outcome), the request gates (idempotent replays, rate-limit rejections),
// and an active sessions gauge. Exposed via the /metrics endpoint for
// Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "focus"

// SessionMetrics holds all Prometheus metrics for session operations.
//
// Initialize once at startup via InitMetrics().
type SessionMetrics struct {
	// SessionsCreatedTotal counts created sessions by type.
	// Labels: session_type (time-boxed, open, pomodoro)
	SessionsCreatedTotal *prometheus.CounterVec

	// TransitionsTotal counts transition requests by action and result.
	// Labels: action (pause, resume, complete, stop, updateMeta),
	// status (success, invalid, not_found, error)
	TransitionsTotal *prometheus.CounterVec

	// SessionsFinishedTotal counts finished sessions by completion type.
	// Labels: completion_type (completed, premature, overtime)
	SessionsFinishedTotal *prometheus.CounterVec

	// ActiveSessions tracks rows currently in active or paused state.
	ActiveSessions prometheus.Gauge

	// IdempotentReplaysTotal counts mutations short-circuited by the
	// idempotency cache.
	IdempotentReplaysTotal prometheus.Counter

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter

	// SessionElapsedSeconds observes final elapsed time of finished sessions.
	SessionElapsedSeconds prometheus.Histogram
}

// DefaultMetrics is the singleton instance of SessionMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *SessionMetrics

// InitMetrics initializes and registers the default metrics instance.
// Call once at application startup. Calling twice panics on duplicate
// registration, matching promauto behavior.
func InitMetrics() *SessionMetrics {
	DefaultMetrics = &SessionMetrics{
		SessionsCreatedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created by type",
		}, []string{"session_type"}),

		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_transitions_total",
			Help:      "Transition requests by action and result",
		}, []string{"action", "status"}),

		SessionsFinishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_finished_total",
			Help:      "Finished sessions by completion classification",
		}, []string{"completion_type"}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Sessions currently active or paused",
		}),

		IdempotentReplaysTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "idempotent_replays_total",
			Help:      "Mutations short-circuited by the idempotency cache",
		}),

		RateLimitedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),

		SessionElapsedSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "session_elapsed_seconds",
			Help:      "Final elapsed time of finished sessions",
			Buckets:   []float64{60, 300, 600, 1500, 3000, 5400, 9000, 14400},
		}),
	}
	return DefaultMetrics
}
