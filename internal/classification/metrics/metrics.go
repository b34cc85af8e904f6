package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClassificationsTotal tracks finished classifications by status
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_classifications_total",
			Help: "Total number of classification requests",
		},
		[]string{"status"},
	)

	// ErrorsDetected tracks detected error records by source and type
	ErrorsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_errors_detected_total",
			Help: "Total number of error records produced by the detector",
		},
		[]string{"source", "type"},
	)

	// StageFailures tracks stages that degraded to defaults
	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_stage_failures_total",
			Help: "Total number of pipeline stages that fell back to defaults",
		},
		[]string{"stage"},
	)

	// StageLatency tracks per-stage latency
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_stage_latency_seconds",
			Help:    "Classification stage latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Escalations tracks results flagged for escalation by global severity
	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_escalations_total",
			Help: "Total number of classifications requiring escalation",
		},
		[]string{"severity"},
	)

	// StrategyConflicts tracks disagreements between the severity and type rules
	StrategyConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_strategy_conflicts_total",
			Help: "Total number of recovery strategy rule conflicts",
		},
	)

	// RecoveryOutcomes tracks reported downstream outcomes
	RecoveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_recovery_outcomes_total",
			Help: "Recovery outcomes reported by downstream executors",
		},
		[]string{"strategy", "success"},
	)
)

// DBConnectionPoolUsage tracks the share of open Postgres connections
var DBConnectionPoolUsage = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "triage_db_connection_pool_usage_percent",
		Help: "Open database connections as a percentage of the pool size",
	},
)
