// Package metrics registers the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ToolExecutions counts tool-executor calls by intent and outcome.
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "causeway_tool_executions_total",
		Help: "Tool executor calls by intent and outcome.",
	}, []string{"intent", "outcome"})

	// LLMRequests counts model calls by component and outcome.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "causeway_llm_requests_total",
		Help: "LLM calls by component and outcome.",
	}, []string{"component", "outcome"})

	// LLMRequestDuration observes model call latency by component.
	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "causeway_llm_request_seconds",
		Help:    "LLM call latency by component.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"component"})

	// SessionsActive tracks the number of live diagnosis sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "causeway_sessions_active",
		Help: "Number of live diagnosis sessions.",
	})

	// GraphNodeDuration observes diagnostic graph node runtime by node
	// name and terminal status.
	GraphNodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "causeway_graph_node_duration_seconds",
		Help:    "Diagnostic graph node runtime by node and status.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"node", "status"})
)
