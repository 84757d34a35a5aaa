// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

// Package metrics defines the Prometheus collectors exported at /metrics.
//
// Collectors are package-level and registered with the default registry
// through promauto, so any package can record without plumbing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/cruisecontrol/internal/models"
)

var (
	// Run Coordinator
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_runs_total",
			Help: "Completed runs by engine and terminal state",
		},
		[]string{"engine", "state", "mode"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cruisecontrol_run_duration_seconds",
			Help:    "Wall-clock duration of runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"engine"},
	)

	RunStage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cruisecontrol_run_stage",
			Help: "Current stage of the active run (0 when idle)",
		},
		[]string{"engine"},
	)

	RunRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_run_rejected_total",
			Help: "Run requests rejected because a run was already in progress",
		},
		[]string{"engine"},
	)

	RunCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_run_candidates_total",
			Help: "History entries recorded by runs, by outcome",
		},
		[]string{"engine", "status"},
	)

	RunLookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_run_lookup_failures_total",
			Help: "Per-artist or per-release lookups a run skipped, by lookup",
		},
		[]string{"engine", "lookup"},
	)

	// Release Cache
	ReleaseCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_release_cache_lookups_total",
			Help: "Release cache lookups by result (hit, miss, stale, error)",
		},
		[]string{"result"},
	)

	ReleaseCacheRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cruisecontrol_release_cache_refresh_seconds",
			Help:    "Duration of full scheduled refreshes",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
		},
	)

	ReleaseCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cruisecontrol_release_cache_entries",
			Help: "Artists tracked by the release cache",
		},
	)

	// Acquisition Queue
	QueueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cruisecontrol_queue_items",
			Help: "Acquisition queue rows by status",
		},
		[]string{"status"},
	)

	QueueTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_queue_transitions_total",
			Help: "Queue status transitions applied by reconciliation",
		},
		[]string{"to"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cruisecontrol_reconcile_duration_seconds",
			Help:    "Duration of queue reconciliation passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler
	SchedulerFires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_scheduler_fires_total",
			Help: "Scheduled slot triggers by slot",
		},
		[]string{"slot"},
	)

	// External providers
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_provider_requests_total",
			Help: "Requests to external collaborators by outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cruisecontrol_provider_request_seconds",
			Help:    "Latency of requests to external collaborators",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ArtworkResolves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_artwork_resolves_total",
			Help: "Artwork resolve requests by result (hit, pending, miss)",
		},
		[]string{"result"},
	)

	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cruisecontrol_audit_events_total",
			Help: "Audit events by result (written, dropped, error)",
		},
		[]string{"result"},
	)

	// API
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
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"endpoint"},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker
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
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordProviderCall records one request to an external collaborator.
func RecordProviderCall(provider string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRun records a terminal run.
func RecordRun(st models.RunStatus, duration time.Duration) {
	mode := string(st.RunMode)
	if st.DryRun {
		mode += "_dry"
	}
	RunsTotal.WithLabelValues(string(st.Engine), string(st.State), mode).Inc()
	RunDuration.WithLabelValues(string(st.Engine)).Observe(duration.Seconds())
	RunStage.WithLabelValues(string(st.Engine)).Set(0)
}

// RecordHistory counts a run's history entries by status.
func RecordHistory(engine models.Engine, entries []models.HistoryEntry) {
	for _, e := range entries {
		RunCandidates.WithLabelValues(string(engine), string(e.Status)).Inc()
	}
}

// UpdateQueueGauges publishes the per-status queue counts.
func UpdateQueueGauges(stats models.QueueStats) {
	QueueItems.WithLabelValues(string(models.QueuePending)).Set(float64(stats.Pending))
	QueueItems.WithLabelValues(string(models.QueueSubmitted)).Set(float64(stats.Submitted))
	QueueItems.WithLabelValues(string(models.QueueFound)).Set(float64(stats.Found))
	QueueItems.WithLabelValues(string(models.QueueFailed)).Set(float64(stats.Failed))
	QueueItems.WithLabelValues(string(models.QueueSkipped)).Set(float64(stats.Skipped))
}
