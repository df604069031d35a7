// Package metrics defines prometheus collectors for the scan engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run metrics
var (
	// RunsTotal tracks terminal run outcomes by trigger and status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_runs_total",
			Help: "Total number of scan runs reaching a terminal status",
		},
		[]string{"trigger", "status"},
	)

	// RunDuration tracks completed run duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_run_duration_seconds",
			Help:    "Scan run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"scan_type"},
	)

	// RunsInProgress tracks runs currently registered with the coordinator.
	RunsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_runs_in_progress",
			Help: "Number of non-terminal scan runs",
		},
	)

	// StaleRuns tracks runs flagged stale by the advisory monitor.
	StaleRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_runs_stale",
			Help: "Number of running scans with no recent progress",
		},
	)
)

// Scheduler metrics
var (
	// ScheduledTriggersTotal counts runs fired by the schedule loop.
	ScheduledTriggersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_scheduled_triggers_total",
			Help: "Total number of runs triggered by the scheduler",
		},
	)

	// TriggerRejectionsTotal counts triggers refused by concurrency policy.
	TriggerRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_trigger_rejections_total",
			Help: "Total number of triggers rejected by concurrency policy",
		},
		[]string{"policy"},
	)
)

// Issue metrics
var (
	// IssuesDetectedTotal counts detected issues by severity.
	IssuesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_issues_detected_total",
			Help: "Total number of issues detected by severity",
		},
		[]string{"severity"},
	)
)

// Bulk metrics
var (
	// BulkItemsTotal counts bulk operation items by operation and outcome.
	BulkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_bulk_items_total",
			Help: "Total number of bulk operation items by outcome",
		},
		[]string{"operation", "outcome"},
	)
)

// Stream metrics
var (
	// StreamEventsTotal counts events published to the update stream.
	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_stream_events_total",
			Help: "Total number of events published to the update stream",
		},
		[]string{"type"},
	)

	// StreamDroppedTotal counts events dropped for slow subscribers.
	StreamDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_stream_dropped_total",
			Help: "Total number of events dropped by slow subscribers",
		},
	)
)
