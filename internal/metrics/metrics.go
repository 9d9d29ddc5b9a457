// Package metrics holds the Prometheus collectors for the sync pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_stage_outcomes_total",
			Help: "Pipeline stage results by stage and outcome",
		},
		[]string{"stage", "outcome"}, // outcome: "ok", "error"
	)

	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transient_retries_total",
			Help: "Automatic retries of transient failures",
		},
		[]string{"stage"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_deliveries_total",
			Help: "Destination uploads by destination and status",
		},
		[]string{"destination", "status"},
	)

	ClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_claim_conflicts_total",
			Help: "Tasks dropped because the record was no longer claimable",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_queue_depth",
			Help: "Tasks waiting for a worker",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_active_workers",
			Help: "Workers currently driving a record",
		},
	)

	// Intake

	ImportResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_import_items_total",
			Help: "Import items by platform and result",
		},
		[]string{"platform", "result"}, // result: "created", "duplicate", "failed"
	)

	AutoSyncEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_autosync_enqueued_total",
			Help: "Records enqueued by the auto-sync scheduler",
		},
	)

	// Upstreams

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_upstream_requests_total",
			Help: "HTTP requests to platforms and destinations",
		},
		[]string{"service", "code"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_circuit_breaker_state",
			Help: "Circuit breaker state per destination (0=closed, 1=half-open, 2=open)",
		},
		[]string{"destination"},
	)
)

// ObserveStage records how long a stage took and how it ended.
func ObserveStage(stage string, start time.Time, err error) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StageOutcomes.WithLabelValues(stage, outcome).Inc()
}
