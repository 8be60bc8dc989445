package safety

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/meridian-research-org/assistantcore/commbus"
	"github.com/meridian-research-org/assistantcore/coreengine/config"
	"github.com/meridian-research-org/assistantcore/coreengine/observability"
)

var tracer = otel.Tracer("assistantcore/safety")

// Logger is the minimal logging surface the safety package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
}

// EventPublisher publishes safety violation events. Optional; when unset
// findings stay in the audit trail only.
type EventPublisher interface {
	Publish(ctx context.Context, event commbus.Message) error
}

// Canned user-facing messages. The refusal text is chosen by the highest
// severity violation's validator; the advisory accompanies queries that
// passed with sub-blocking findings.
const (
	MessageToxicityBlocked  = "I cannot process this query as it may contain harmful content."
	MessageInjectionBlocked = "I detected a potential prompt injection attempt. Please rephrase your query."
	MessagePIIBlocked       = "I cannot process requests containing personal information."
	MessageGenericBlocked   = "I cannot process this request due to safety policies."
	MessageAdvisory         = "Note: Your query has been flagged for review but will be processed."
)

// InputCheck is the outcome of screening a user query.
type InputCheck struct {
	// Safe is false when the query must not be processed.
	Safe bool `json:"safe"`
	// Violations holds every finding, blocking or not.
	Violations []Violation `json:"violations"`
	// Message carries the refusal text when Safe is false, the advisory
	// note when Safe is true with findings, and is empty otherwise.
	Message string `json:"message,omitempty"`
}

// OutputCheck is the outcome of screening an assistant response.
type OutputCheck struct {
	// Safe is false when the raw response violated output policy.
	Safe bool `json:"safe"`
	// Violations holds every finding.
	Violations []Violation `json:"violations"`
	// FinalResponse is the text to deliver: the sanitized response, or the
	// configured refusal message under the refuse action.
	FinalResponse string `json:"final_response"`
	// OriginalResponse preserves the raw text, set only when Safe is false.
	OriginalResponse string `json:"original_response,omitempty"`
}

// Stats summarizes recorded safety events.
type Stats struct {
	TotalEvents   int     `json:"total_events"`
	InputChecks   int     `json:"input_checks"`
	OutputChecks  int     `json:"output_checks"`
	Violations    int     `json:"violations"`
	ViolationRate float64 `json:"violation_rate"`
}

// ToMap converts stats for bus payloads.
func (s Stats) ToMap() map[string]any {
	return map[string]any{
		"total_events":   s.TotalEvents,
		"input_checks":   s.InputChecks,
		"output_checks":  s.OutputChecks,
		"violations":     s.Violations,
		"violation_rate": s.ViolationRate,
	}
}

// =============================================================================
// SAFETY MANAGER
// =============================================================================

// SafetyManager runs both guardrails, applies the configured violation
// policy, and records audit events. It is safe for concurrent use.
type SafetyManager struct {
	cfg    *config.SafetyConfig
	input  *InputGuardrail
	output *OutputGuardrail
	sink   AuditSink
	logger Logger

	mu     sync.RWMutex
	events []*SafetyEvent
	bus    EventPublisher
}

// NewSafetyManager builds a manager from cfg. A nil cfg uses the global
// safety configuration; a nil sink disables audit persistence while event
// retention for statistics continues in memory.
func NewSafetyManager(cfg *config.SafetyConfig, sink AuditSink, logger Logger) (*SafetyManager, error) {
	if cfg == nil {
		cfg = config.GetSafetyConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = &NopSink{}
	}

	m := &SafetyManager{
		cfg:    cfg,
		input:  NewInputGuardrail(cfg, logger),
		output: NewOutputGuardrail(cfg, logger),
		sink:   sink,
		logger: logger,
	}

	logger.Info("safety_manager_initialized",
		"enabled", cfg.Enabled,
		"on_violation", cfg.OnViolationAction,
		"log_events", cfg.LogEvents)

	return m, nil
}

// SetEventPublisher attaches a publisher for SafetyViolationRaised events.
func (m *SafetyManager) SetEventPublisher(bus EventPublisher) {
	m.mu.Lock()
	m.bus = bus
	m.mu.Unlock()
}

// CheckInput screens a user query before any model or tool sees it. When
// the manager is disabled the query passes untouched.
func (m *SafetyManager) CheckInput(ctx context.Context, query string) InputCheck {
	if !m.cfg.Enabled {
		return InputCheck{Safe: true, Violations: []Violation{}}
	}

	ctx, span := tracer.Start(ctx, "safety.check_input",
		oteltrace.WithAttributes(
			attribute.Int("assistant.safety.query_length", len(query)),
		))
	defer span.End()

	start := time.Now()
	result := m.input.Validate(query)
	durationMS := int(time.Since(start).Milliseconds())

	check := InputCheck{
		Safe:       result.Valid,
		Violations: result.Violations,
	}

	outcome := "safe"
	if !check.Safe {
		outcome = "unsafe"
		check.Message = m.refusalMessage(result.Violations)
	} else if len(check.Violations) > 0 {
		check.Message = MessageAdvisory
	}

	observability.RecordSafetyCheck(string(DirectionInput), outcome, durationMS)
	for _, v := range check.Violations {
		observability.RecordSafetyViolation(string(v.Validator), string(v.Severity))
	}

	span.SetAttributes(
		attribute.Bool("assistant.safety.safe", check.Safe),
		attribute.Int("assistant.safety.violations", len(check.Violations)),
	)

	if len(check.Violations) > 0 && m.cfg.LogEvents {
		m.recordEvent(ctx, NewSafetyEvent(DirectionInput, query, check.Violations, check.Safe))
	}
	if len(check.Violations) > 0 {
		m.publishViolation(ctx, DirectionInput, check.Violations, result.HighestSeverity(), !check.Safe)
	}

	switch {
	case !check.Safe:
		m.logger.Warning("input_blocked",
			"violations", len(check.Violations),
			"highest_severity", string(result.HighestSeverity()),
			"duration_ms", durationMS)
	case len(check.Violations) > 0:
		m.logger.Info("input_flagged",
			"violations", len(check.Violations),
			"duration_ms", durationMS)
	default:
		m.logger.Debug("input_check_passed", "duration_ms", durationMS)
	}

	return check
}

// CheckOutput screens an assistant response before delivery. Sanitization
// is applied to safe responses as well; the raw text is preserved only
// when the response was unsafe.
func (m *SafetyManager) CheckOutput(ctx context.Context, response string) OutputCheck {
	if !m.cfg.Enabled {
		return OutputCheck{Safe: true, Violations: []Violation{}, FinalResponse: response}
	}

	ctx, span := tracer.Start(ctx, "safety.check_output",
		oteltrace.WithAttributes(
			attribute.Int("assistant.safety.response_length", len(response)),
		))
	defer span.End()

	start := time.Now()
	result := m.output.Validate(response)
	durationMS := int(time.Since(start).Milliseconds())

	check := OutputCheck{
		Safe:       result.Valid,
		Violations: result.Violations,
	}

	outcome := "safe"
	if !check.Safe {
		outcome = "unsafe"
		check.OriginalResponse = response
		switch m.cfg.OnViolationAction {
		case config.ViolationActionRefuse:
			check.FinalResponse = m.cfg.OnViolationMessage
		default:
			check.FinalResponse = result.SanitizedText
		}
	} else {
		check.FinalResponse = result.SanitizedText
	}

	observability.RecordSafetyCheck(string(DirectionOutput), outcome, durationMS)
	for _, v := range check.Violations {
		observability.RecordSafetyViolation(string(v.Validator), string(v.Severity))
	}

	span.SetAttributes(
		attribute.Bool("assistant.safety.safe", check.Safe),
		attribute.Int("assistant.safety.violations", len(check.Violations)),
	)

	if len(check.Violations) > 0 && m.cfg.LogEvents {
		m.recordEvent(ctx, NewSafetyEvent(DirectionOutput, response, check.Violations, check.Safe))
	}
	if len(check.Violations) > 0 {
		m.publishViolation(ctx, DirectionOutput, check.Violations, result.HighestSeverity(), !check.Safe)
	}

	if !check.Safe {
		m.logger.Warning("output_violation",
			"violations", len(check.Violations),
			"action", m.cfg.OnViolationAction,
			"duration_ms", durationMS)
	} else {
		m.logger.Debug("output_check_passed", "duration_ms", durationMS)
	}

	return check
}

// Sanitize redacts PII from text without running the full output check.
func (m *SafetyManager) Sanitize(text string) string {
	return m.output.Sanitize(text)
}

// publishViolation notifies bus observers of findings. Matched content
// never rides on the bus, only rule identities and counts.
func (m *SafetyManager) publishViolation(ctx context.Context, direction Direction, violations []Violation, highest Severity, blocked bool) {
	m.mu.RLock()
	bus := m.bus
	m.mu.RUnlock()
	if bus == nil {
		return
	}

	event := &commbus.SafetyViolationRaised{
		Direction:  string(direction),
		Validator:  string(violations[0].Validator),
		Severity:   string(highest),
		Blocked:    blocked,
		Violations: len(violations),
	}
	if err := bus.Publish(ctx, event); err != nil {
		m.logger.Debug("event_publish_failed",
			"event", commbus.GetMessageType(event),
			"error", err.Error())
	}
}

// recordEvent retains the event and forwards it to the sink. Sink failures
// are logged and swallowed so auditing never fails a safety check.
func (m *SafetyManager) recordEvent(ctx context.Context, event *SafetyEvent) {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	if err := m.sink.Append(ctx, event); err != nil {
		m.logger.Error("audit_append_failed",
			"event_id", event.EventID,
			"error", err.Error())
	}
}

// Events returns a copy of the recorded events in order.
func (m *SafetyManager) Events() []*SafetyEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*SafetyEvent(nil), m.events...)
}

// ClearEvents drops all recorded events.
func (m *SafetyManager) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// Stats summarizes the recorded events.
func (m *SafetyManager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{TotalEvents: len(m.events)}
	for _, event := range m.events {
		switch event.Direction {
		case DirectionInput:
			stats.InputChecks++
		case DirectionOutput:
			stats.OutputChecks++
		}
		if !event.Safe {
			stats.Violations++
		}
	}
	if stats.TotalEvents > 0 {
		stats.ViolationRate = float64(stats.Violations) / float64(stats.TotalEvents)
	}
	return stats
}

// refusalMessage picks the user-facing refusal for a blocked query from
// its highest severity violation.
func (m *SafetyManager) refusalMessage(violations []Violation) string {
	var blocking *Violation
	for i := range violations {
		if violations[i].Severity == SeverityHigh {
			blocking = &violations[i]
			break
		}
	}
	if blocking == nil {
		return MessageGenericBlocked
	}
	switch blocking.Validator {
	case ValidatorToxicity:
		return MessageToxicityBlocked
	case ValidatorPromptInjection:
		return MessageInjectionBlocked
	case ValidatorPII:
		return MessagePIIBlocked
	default:
		return MessageGenericBlocked
	}
}
