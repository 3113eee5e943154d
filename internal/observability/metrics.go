// Package observability exposes Prometheus instrumentation for the inference
// pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_pipeline_requests_total",
			Help: "Total number of pipeline executions by outcome.",
		},
		[]string{"outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nl2sql_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	rankerFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_ranker_fallbacks_total",
			Help: "Pipeline runs that proceeded without GAT pruning.",
		},
	)

	llmRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_llm_retries_total",
			Help: "LLM calls retried after transient failures.",
		},
	)

	correctionRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_correction_rounds_total",
			Help: "Validator-driven IR correction rounds.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		stageDurationSeconds,
		rankerFallbacksTotal,
		llmRetriesTotal,
		correctionRoundsTotal,
	)
}

// ObservePipeline records one pipeline execution outcome.
func ObservePipeline(outcome string) {
	pipelineRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records the latency of one pipeline stage.
func ObserveStage(stage string, d time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRankerFallback counts a run that used the full schema.
func ObserveRankerFallback() {
	rankerFallbacksTotal.Inc()
}

// ObserveLLMRetry counts one retried LLM call.
func ObserveLLMRetry() {
	llmRetriesTotal.Inc()
}

// ObserveCorrectionRound counts one IR correction round.
func ObserveCorrectionRound() {
	correctionRoundsTotal.Inc()
}
