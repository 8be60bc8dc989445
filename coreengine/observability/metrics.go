// Package observability provides Prometheus metrics instrumentation for the coreengine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// CONVERSATION METRICS
// =============================================================================

var (
	conversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_conversations_total",
			Help: "Total number of coordinated conversations",
		},
		[]string{"status"}, // status: completed, input_blocked, generation_failed, cancelled
	)

	conversationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_conversation_duration_seconds",
			Help:    "Conversation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
)

// =============================================================================
// TURN METRICS
// =============================================================================

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Total number of role turns taken",
		},
		[]string{"role", "status"}, // status: success, error
	)

	turnDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_turn_duration_seconds",
			Help:    "Role turn duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"role"},
	)
)

// =============================================================================
// SAFETY METRICS
// =============================================================================

var (
	safetyChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_safety_checks_total",
			Help: "Total number of safety gate checks",
		},
		[]string{"direction", "outcome"}, // direction: input, output; outcome: safe, unsafe
	)

	safetyCheckDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_safety_check_duration_seconds",
			Help:    "Safety check duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"direction"},
	)

	safetyViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_safety_violations_total",
			Help: "Total number of rule violations detected",
		},
		[]string{"validator", "severity"}, // severity: low, medium, high
	)
)

// =============================================================================
// LLM METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_llm_calls_total",
			Help: "Total number of LLM generation calls",
		},
		[]string{"role", "status"}, // status: success, error
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_llm_duration_seconds",
			Help:    "LLM generation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"role"},
	)
)

// =============================================================================
// TOOL METRICS
// =============================================================================

var (
	toolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_tool_executions_total",
			Help: "Total number of research tool invocations",
		},
		[]string{"tool", "status"}, // status: success, error
	)

	toolDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_tool_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"tool"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordConversation records conversation-level metrics.
// This should be called once when a conversation finishes.
func RecordConversation(status string, durationMS int) {
	conversationsTotal.WithLabelValues(status).Inc()
	conversationDurationSeconds.WithLabelValues(status).Observe(float64(durationMS) / 1000.0)
}

// RecordTurn records role turn metrics.
// This should be called after each turn completes.
func RecordTurn(role string, status string, durationMS int) {
	turnsTotal.WithLabelValues(role, status).Inc()
	turnDurationSeconds.WithLabelValues(role).Observe(float64(durationMS) / 1000.0)
}

// RecordSafetyCheck records safety gate metrics.
// This should be called after each input or output check.
func RecordSafetyCheck(direction string, outcome string, durationMS int) {
	safetyChecksTotal.WithLabelValues(direction, outcome).Inc()
	safetyCheckDurationSeconds.WithLabelValues(direction).Observe(float64(durationMS) / 1000.0)
}

// RecordSafetyViolation records a single detected rule violation.
func RecordSafetyViolation(validator string, severity string) {
	safetyViolationsTotal.WithLabelValues(validator, severity).Inc()
}

// RecordLLMCall records LLM generation metrics.
// This should be called per attempt, including retried attempts.
func RecordLLMCall(role string, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(role, status).Inc()
	llmDurationSeconds.WithLabelValues(role).Observe(float64(durationMS) / 1000.0)
}

// RecordToolExecution records research tool metrics.
// This should be called after each tool invocation completes.
func RecordToolExecution(tool string, status string, durationMS int) {
	toolExecutionsTotal.WithLabelValues(tool, status).Inc()
	toolDurationSeconds.WithLabelValues(tool).Observe(float64(durationMS) / 1000.0)
}
