// Package metrics provides Prometheus instrumentation for the gateway.
// This package is internal and should not be imported by external
// projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the gateway's Prometheus metrics: one
// set for provider delivery (routed through the adapter) and one for
// workflow step execution. Namespaced so several Collectors can coexist
// in the same process (tests build a fresh one per case).
type Collector struct {
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	workflowStepsTotal   *prometheus.CounterVec
	workflowStepDuration *prometheus.HistogramVec
	workflowStateChanges *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector builds and registers a Collector under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of provider prompt deliveries",
		},
		[]string{"provider", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Provider prompt round-trip latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total tokens counted per provider request",
		},
		[]string{"provider", "type"}, // type: prompt, completion
	)

	c.workflowStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of workflow steps executed",
		},
		[]string{"step_type", "status"},
	)

	c.workflowStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Workflow step execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"step_type"},
	)

	c.workflowStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_state_transitions_total",
			Help:      "Total number of workflow state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordLLMRequest records one provider prompt delivery: outcome, latency,
// and the prompt/completion token counts the adapter measured.
func (c *Collector) RecordLLMRequest(provider, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, "completion").Add(float64(completionTokens))
}

// RecordWorkflowStep records one ExecuteNext call: the step type, its
// outcome, and how long it took.
func (c *Collector) RecordWorkflowStep(stepType, status string, duration time.Duration) {
	c.workflowStepsTotal.WithLabelValues(stepType, status).Inc()
	c.workflowStepDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

// RecordWorkflowStateChange records a workflow's State transition, e.g.
// running -> paused on a human_review step.
func (c *Collector) RecordWorkflowStateChange(from, to string) {
	c.workflowStateChanges.WithLabelValues(from, to).Inc()
}
