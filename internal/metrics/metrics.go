// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket connection metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of open WebSocket connections",
		},
	)

	WSAuthenticated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_registered_users",
			Help: "Current number of users with a registered connection",
		},
	)

	WSFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_frames_received_total",
			Help: "Total inbound frames by type",
		},
		[]string{"type"},
	)

	WSFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_frames_sent_total",
			Help: "Total outbound frames enqueued by type",
		},
		[]string{"type"},
	)

	WSFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_frames_dropped_total",
			Help: "Outbound frames dropped because the target was closed or its buffer was full",
		},
		[]string{"type", "reason"},
	)

	WSProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_protocol_errors_total",
			Help: "Inbound frames dropped as malformed or of unknown type",
		},
		[]string{"error_type"},
	)

	WSAuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_auth_attempts_total",
			Help: "Authentication attempts by result",
		},
		[]string{"result"}, // success, invalid, empty, duplicate
	)

	WSHeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_heartbeat_timeouts_total",
			Help: "Connections closed after missing heartbeats",
		},
	)

	WSSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_superseded_total",
			Help: "Connections closed because the same user authenticated elsewhere",
		},
	)

	// Fan-out metrics
	FanOutDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_deliveries_total",
			Help: "Fan-out deliveries by event type and outcome",
		},
		[]string{"event", "outcome"}, // outcome: delivered, offline, dropped
	)

	IngressRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingress_events_total",
			Help: "Domain events received from collaborators by source",
		},
		[]string{"source", "event", "result"},
	)

	// Store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of external store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Total number of failed external store queries",
		},
		[]string{"operation"},
	)

	SessionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_lookups_total",
			Help: "Session validation cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	PresenceRecorderDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_recorder_dropped_total",
			Help: "Presence changes not recorded because the queue was full",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordStoreQuery records an external store query.
func RecordStoreQuery(operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordFrameSent counts an enqueued outbound frame.
func RecordFrameSent(frameType string) {
	WSFramesSent.WithLabelValues(frameType).Inc()
}

// RecordFrameDropped counts an outbound frame that could not be enqueued.
func RecordFrameDropped(frameType, reason string) {
	WSFramesDropped.WithLabelValues(frameType, reason).Inc()
}
