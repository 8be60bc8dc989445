// Package testutil provides shared test utilities and mocks for integration
// tests.
//
// All mocks in this package are designed for testing the conversation
// pipeline in isolation without live search endpoints or LLM providers.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridian-research-org/assistantcore/commbus"
	"github.com/meridian-research-org/assistantcore/coreengine/config"
	"github.com/meridian-research-org/assistantcore/coreengine/roles"
	"github.com/meridian-research-org/assistantcore/coreengine/safety"
	"github.com/meridian-research-org/assistantcore/coreengine/tools"
)

// =============================================================================
// MOCK LLM PROVIDER
// =============================================================================

// MockLLMProvider implements roles.LLMProvider for testing.
// Configure responses by prompt prefix or use DefaultResponse. Role prompts
// always open with the role directive, so WithRoleResponse scripts one role
// regardless of transcript content.
type MockLLMProvider struct {
	// Responses maps prompt prefixes to responses.
	// First matching prefix wins.
	Responses map[string]string

	// DefaultResponse is returned when no prefix matches.
	DefaultResponse string

	// Delay simulates provider latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// CallCount tracks the number of Generate calls.
	CallCount int

	// Calls records all calls for assertion.
	Calls []LLMCall

	// GenerateFunc allows custom generation logic.
	// If set, this is called instead of using Responses.
	GenerateFunc func(context.Context, string, string, map[string]any) (string, error)

	mu sync.Mutex
}

// LLMCall records a single LLM call for assertion.
type LLMCall struct {
	Model   string
	Prompt  string
	Options map[string]any
}

// NewMockLLMProvider creates a MockLLMProvider with sensible defaults.
func NewMockLLMProvider() *MockLLMProvider {
	return &MockLLMProvider{
		Responses:       make(map[string]string),
		DefaultResponse: "Continuing the usability research discussion.",
	}
}

// Generate implements roles.LLMProvider.
func (m *MockLLMProvider) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.Calls = append(m.Calls, LLMCall{Model: model, Prompt: prompt, Options: options})
	customFunc := m.GenerateFunc
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, model, prompt, options)
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Error != nil {
		return "", m.Error
	}

	for prefix, response := range m.Responses {
		if len(prompt) >= len(prefix) && prompt[:len(prefix)] == prefix {
			return response, nil
		}
	}

	return m.DefaultResponse, nil
}

// WithResponse adds a prefix-based response.
func (m *MockLLMProvider) WithResponse(prefix, response string) *MockLLMProvider {
	m.Responses[prefix] = response
	return m
}

// WithRoleResponse scripts one role's turns using its directive as the
// prompt prefix.
func (m *MockLLMProvider) WithRoleResponse(name roles.RoleName, response string) *MockLLMProvider {
	role, err := roles.Get(name)
	if err != nil {
		return m
	}
	return m.WithResponse(role.Directive, response)
}

// WithError configures the mock to return an error.
func (m *MockLLMProvider) WithError(err error) *MockLLMProvider {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockLLMProvider) WithDelay(d time.Duration) *MockLLMProvider {
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockLLMProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// PromptsFor returns the prompts a role received, matched by directive.
func (m *MockLLMProvider) PromptsFor(name roles.RoleName) []string {
	role, err := roles.Get(name)
	if err != nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var prompts []string
	for _, call := range m.Calls {
		if len(call.Prompt) >= len(role.Directive) && call.Prompt[:len(role.Directive)] == role.Directive {
			prompts = append(prompts, call.Prompt)
		}
	}
	return prompts
}

// Reset clears call history.
func (m *MockLLMProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.Calls = nil
}

// =============================================================================
// CANNED SEARCH TOOLS
// =============================================================================

// Stable fixture URLs so tests can assert citation extraction.
const (
	StubWebURL   = "https://webfindings.example.com/usability-heuristics"
	StubPaperURL = "https://papers.example.org/heuristic-evaluation-2021"
)

// StubWebSearch returns a web_search definition serving one canned result.
// The result shape matches the live tool: results, count, formatted.
func StubWebSearch() *tools.ToolDefinition {
	return &tools.ToolDefinition{
		Name:        "web_search",
		Description: "Canned web search results for tests.",
		Category:    "research",
		RiskLevel:   "low",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			results := []map[string]any{
				{
					"title":   "Usability Heuristics in Practice",
					"url":     StubWebURL,
					"snippet": "Applying the classic heuristics to modern product design.",
				},
			}
			formatted := fmt.Sprintf(
				"Found 1 web results:\n1. Usability Heuristics in Practice\n   %s\n   Applying the classic heuristics to modern product design.\n",
				StubWebURL,
			)
			return map[string]any{
				"results":   results,
				"count":     1,
				"formatted": formatted,
			}, nil
		},
	}
}

// StubPaperSearch returns a paper_search definition serving one canned
// paper. The result shape matches the live tool: papers, count, formatted.
func StubPaperSearch() *tools.ToolDefinition {
	return &tools.ToolDefinition{
		Name:        "paper_search",
		Description: "Canned paper search results for tests.",
		Category:    "research",
		RiskLevel:   "low",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			papers := []map[string]any{
				{
					"paper_id":       "stub-0001",
					"title":          "Heuristic Evaluation at Scale",
					"authors":        []string{"R. Vasquez", "M. Chen"},
					"year":           2021,
					"abstract":       "A large-scale study of heuristic evaluation outcomes.",
					"citation_count": 42,
					"url":            StubPaperURL,
				},
			}
			formatted := "Found 1 papers:\n1. Heuristic Evaluation at Scale (2021)\n   R. Vasquez, M. Chen\n   A large-scale study of heuristic evaluation outcomes.\n"
			return map[string]any{
				"papers":    papers,
				"count":     1,
				"formatted": formatted,
			}, nil
		},
	}
}

// StubFailingTool returns a definition whose handler always fails.
func StubFailingTool(name string, err error) *tools.ToolDefinition {
	return &tools.ToolDefinition{
		Name:        name,
		Description: "Always-failing tool for degradation tests.",
		Category:    "research",
		RiskLevel:   "low",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, err
		},
	}
}

// NewSearchExecutor builds a real executor with both canned search tools
// registered.
func NewSearchExecutor(logger *MockLogger) (*tools.ToolExecutor, error) {
	executor := tools.NewToolExecutor(logger)
	if err := executor.Register(StubWebSearch()); err != nil {
		return nil, err
	}
	if err := executor.Register(StubPaperSearch()); err != nil {
		return nil, err
	}
	return executor, nil
}

// =============================================================================
// EVENT COLLECTOR
// =============================================================================

// EventCollector subscribes to bus events and records them for assertion.
type EventCollector struct {
	mu     sync.Mutex
	events []commbus.Message
}

// NewEventCollector creates an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Handler returns the subscription handler recording into this collector.
func (c *EventCollector) Handler() commbus.HandlerFunc {
	return func(ctx context.Context, message commbus.Message) (any, error) {
		c.mu.Lock()
		c.events = append(c.events, message)
		c.mu.Unlock()
		return nil, nil
	}
}

// CollectFrom subscribes the collector to every listed event type.
func (c *EventCollector) CollectFrom(bus *commbus.InMemoryCommBus, eventTypes ...string) {
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, c.Handler())
	}
}

// Events returns a copy of the captured events (thread-safe).
func (c *EventCollector) Events() []commbus.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]commbus.Message, len(c.events))
	copy(copied, c.events)
	return copied
}

// OfType returns captured events of one message type, in arrival order.
func (c *EventCollector) OfType(eventType string) []commbus.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []commbus.Message
	for _, event := range c.events {
		if commbus.GetMessageType(event) == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// CountOf returns how many events of one type were captured.
func (c *EventCollector) CountOf(eventType string) int {
	return len(c.OfType(eventType))
}

// Clear removes all captured events.
func (c *EventCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// =============================================================================
// RECORDING AUDIT SINK
// =============================================================================

// RecordingSink implements safety.AuditSink and records appended events.
type RecordingSink struct {
	// AppendError causes Append to return this error.
	AppendError error

	mu     sync.Mutex
	events []*safety.SafetyEvent
	count  int
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Append implements safety.AuditSink.
func (s *RecordingSink) Append(ctx context.Context, event *safety.SafetyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.AppendError != nil {
		return s.AppendError
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns the recorded events (thread-safe).
func (s *RecordingSink) Events() []*safety.SafetyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]*safety.SafetyEvent, len(s.events))
	copy(copied, s.events)
	return copied
}

// AppendCount returns how many appends were attempted, including failures.
func (s *RecordingSink) AppendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Clear removes recorded events and resets counters.
func (s *RecordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.count = 0
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger records structured log calls for assertion. It satisfies the
// Logger interfaces of the conversation, safety, roles, and tools packages.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logs: make([]LogEntry, 0),
	}
}

func (m *MockLogger) Debug(msg string, args ...any)   { m.log("debug", msg, args...) }
func (m *MockLogger) Info(msg string, args ...any)    { m.log("info", msg, args...) }
func (m *MockLogger) Warning(msg string, args ...any) { m.log("warning", msg, args...) }
func (m *MockLogger) Error(msg string, args ...any)   { m.log("error", msg, args...) }

func (m *MockLogger) log(level, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}

	m.Logs = append(m.Logs, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]LogEntry, len(m.Logs))
	copy(copied, m.Logs)
	return copied
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.Logs {
		if entry.Level == level && entry.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
}

// =============================================================================
// CONFIG HELPERS
// =============================================================================

// NewTestConversationConfig creates a conversation config for testing:
// negligible retry backoff and no per-turn timers.
func NewTestConversationConfig(maxRounds int) *config.ConversationConfig {
	cfg := config.DefaultConversationConfig()
	cfg.MaxRounds = maxRounds
	cfg.TurnTimeoutSeconds = 0
	cfg.RetryBackoffMS = 1
	cfg.RetryBackoffMaxMS = 2
	return cfg
}

// NewTestSafetyManager builds a manager from the default policy backed by a
// memory sink.
func NewTestSafetyManager(logger *MockLogger) (*safety.SafetyManager, error) {
	return safety.NewSafetyManager(config.DefaultSafetyConfig(), safety.NewMemorySink(), logger)
}
