// Package metrics exposes Prometheus metrics of the agent's memory pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "laffey"

// LatencyBuckets are histogram buckets for LLM and turn latency, in seconds
var LatencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120}

var (
	// TurnsTotal counts processed turns by outcome ("ok", "fallback")
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of processed chat turns",
		},
		[]string{"outcome"},
	)

	TurnLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of one chat turn in seconds",
			Buckets:   LatencyBuckets,
		},
	)

	GenerationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_tokens_total",
			Help:      "Tokens consumed by response generation",
		},
		[]string{"model"},
	)

	// ConsolidationRuns counts consolidation passes by outcome
	// ("ok", "empty", "busy", "aborted")
	ConsolidationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_runs_total",
			Help:      "Total number of consolidation passes",
		},
		[]string{"outcome"},
	)

	ConsolidatedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidated_records_total",
			Help:      "Records written by consolidation",
		},
		[]string{"layer"},
	)

	// ExternalFailures counts substituted failures of external services
	ExternalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_failures_total",
			Help:      "External service failures replaced by a fallback",
		},
		[]string{"service"},
	)
)
