// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package metrics provides Prometheus instrumentation for the tracker:
// outbound HTTP calls, the RTA websocket, authentication stages, the
// asset cache, and dispatcher publishes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbl_http_requests_total",
			Help: "Total outbound HTTP requests to Xbox and Microsoft services",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xbl_http_request_duration_seconds",
			Help:    "Outbound HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xbl_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbl_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbl_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by outcome",
		},
		[]string{"name", "outcome"}, // success, failure, rejected
	)

	// Authentication metrics
	AuthStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbl_auth_stage_total",
			Help: "Authentication ladder stages by outcome",
		},
		[]string{"stage", "outcome"}, // stage: user_token, refresh, device_code, device_token, sisu
	)

	// RTA websocket metrics
	RTAConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xbl_rta_connected",
			Help: "Whether the RTA websocket is currently connected (0/1)",
		},
	)

	RTAMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbl_rta_messages_total",
			Help: "RTA messages received by classified type",
		},
		[]string{"type"}, // presence, achievement, unknown
	)

	// Asset cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xbl_asset_cache_hits_total",
			Help: "Asset cache hits (file already on disk)",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xbl_asset_cache_misses_total",
			Help: "Asset cache misses (download required)",
		},
	)

	CacheDownloadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xbl_asset_cache_download_errors_total",
			Help: "Failed asset downloads",
		},
	)

	// Dispatcher metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbl_events_published_total",
			Help: "Events published to dispatcher topics",
		},
		[]string{"topic"},
	)

	// Session metrics
	AchievementsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xbl_session_achievements",
			Help: "Achievements in the current session catalog",
		},
	)

	AchievementsUnlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xbl_session_unlocks_total",
			Help: "Achievements unlocked while the monitor was running",
		},
	)
)
