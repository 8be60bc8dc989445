// Package conversation tests for the Coordinator.
package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research-org/assistantcore/commbus"
	"github.com/meridian-research-org/assistantcore/coreengine/config"
	"github.com/meridian-research-org/assistantcore/coreengine/roles"
	"github.com/meridian-research-org/assistantcore/coreengine/safety"
)

// cleanQuery passes the input gate with no findings.
const cleanQuery = "What usability heuristics apply to mobile interface design?"

// =============================================================================
// TEST HELPERS
// =============================================================================

// MockLogger implements Logger for testing.
type MockLogger struct {
	debugCalls   []string
	infoCalls    []string
	warningCalls []string
	errorCalls   []string
}

func (m *MockLogger) Debug(msg string, args ...any)   { m.debugCalls = append(m.debugCalls, msg) }
func (m *MockLogger) Info(msg string, args ...any)    { m.infoCalls = append(m.infoCalls, msg) }
func (m *MockLogger) Warning(msg string, args ...any) { m.warningCalls = append(m.warningCalls, msg) }
func (m *MockLogger) Error(msg string, args ...any)   { m.errorCalls = append(m.errorCalls, msg) }

// MockLLM scripts responses by call number (1-based); unscripted calls
// return the fallback. A set err fails every call.
type MockLLM struct {
	responses map[int]string
	fallback  string
	err       error
	calls     int
	prompts   []string
}

func (m *MockLLM) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if text, ok := m.responses[m.calls]; ok {
		return text, nil
	}
	return m.fallback, nil
}

// MockToolExecutor implements roles.ToolExecutor and records call order.
type MockToolExecutor struct {
	calls []string
}

func (m *MockToolExecutor) Execute(ctx context.Context, toolName string, params map[string]any) (map[string]any, error) {
	m.calls = append(m.calls, toolName)
	return map[string]any{"formatted": toolName + " evidence"}, nil
}

// MockEventPublisher captures published events.
type MockEventPublisher struct {
	events []commbus.Message
}

func (m *MockEventPublisher) Publish(ctx context.Context, event commbus.Message) error {
	m.events = append(m.events, event)
	return nil
}

// blockingLLM parks every generation until release is closed.
type blockingLLM struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (m *blockingLLM) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	m.once.Do(func() { close(m.started) })
	<-m.release
	return "TERMINATE", nil
}

// cancellingLLM cancels the conversation context on its nth call.
type cancellingLLM struct {
	cancel   context.CancelFunc
	after    int
	fallback string
	calls    int
}

func (m *cancellingLLM) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	m.calls++
	if m.calls >= m.after {
		m.cancel()
		return "", ctx.Err()
	}
	return m.fallback, nil
}

// deadlineLLM blocks until the turn deadline expires.
type deadlineLLM struct{}

func (deadlineLLM) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// fastConfig keeps retries and timers negligible for tests.
func fastConfig() *config.ConversationConfig {
	cfg := config.DefaultConversationConfig()
	cfg.TurnTimeoutSeconds = 0
	cfg.RetryBackoffMS = 1
	cfg.RetryBackoffMaxMS = 2
	return cfg
}

func newTestCoordinator(t *testing.T, cfg *config.ConversationConfig, llm roles.LLMProvider, events EventPublisher) (*Coordinator, *MockToolExecutor, *MockLogger) {
	t.Helper()
	if cfg == nil {
		cfg = fastConfig()
	}
	logger := &MockLogger{}
	manager, err := safety.NewSafetyManager(config.DefaultSafetyConfig(), safety.NewMemorySink(), logger)
	require.NoError(t, err)

	tools := &MockToolExecutor{}
	coordinator, err := New(manager, llm, tools, cfg, logger, events)
	require.NoError(t, err)
	return coordinator, tools, logger
}

// =============================================================================
// CREATION TESTS
// =============================================================================

func TestNewCoordinatorBuildsAllAgents(t *testing.T) {
	// Test construction with one agent per turn-taking role.
	coordinator, _, logger := newTestCoordinator(t, nil, &MockLLM{fallback: "ok"}, nil)

	assert.NotNil(t, coordinator)
	assert.Len(t, coordinator.agents, 4)
	assert.Contains(t, logger.infoCalls, "coordinator_initialized")
}

func TestNewCoordinatorRequiresManager(t *testing.T) {
	// Test that a nil safety manager is rejected.
	_, err := New(nil, &MockLLM{}, &MockToolExecutor{}, nil, &MockLogger{}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "safety manager is required")
}

func TestNewCoordinatorInvalidConfig(t *testing.T) {
	// Test that config validation failures surface at construction.
	logger := &MockLogger{}
	manager, err := safety.NewSafetyManager(config.DefaultSafetyConfig(), safety.NewMemorySink(), logger)
	require.NoError(t, err)

	cfg := config.DefaultConversationConfig()
	cfg.MaxRounds = 0

	_, err = New(manager, &MockLLM{}, &MockToolExecutor{}, cfg, logger, nil)

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "max_rounds", cfgErr.Field)
}

func TestNewCoordinatorRequiresProvider(t *testing.T) {
	// Test that a nil LLM provider fails agent construction.
	logger := &MockLogger{}
	manager, err := safety.NewSafetyManager(config.DefaultSafetyConfig(), safety.NewMemorySink(), logger)
	require.NoError(t, err)

	_, err = New(manager, nil, &MockToolExecutor{}, nil, logger, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm provider")
}

// =============================================================================
// CONVERSATION FLOW TESTS
// =============================================================================

func TestProcessQueryRunsAllRoundsWithoutToken(t *testing.T) {
	// Test a full run to the round limit: fixed role cycle, researcher
	// tools each round, writer content as the response.
	cfg := fastConfig()
	cfg.MaxRounds = 2
	llm := &MockLLM{fallback: "Expanding on usability heuristics research."}
	coordinator, tools, logger := newTestCoordinator(t, cfg, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)

	require.NoError(t, err)
	assert.Equal(t, ReasonRoundLimit, result.Metadata.TerminationReason)
	assert.Equal(t, "Expanding on usability heuristics research.", result.Response)
	assert.True(t, result.Metadata.SafetyCheckPassed)
	assert.False(t, result.Metadata.Blocked)
	assert.Empty(t, result.Metadata.AdvisoryNote)
	assert.Equal(t, 9, result.Metadata.NumMessages)

	// User seed plus two full role cycles.
	require.Len(t, result.ConversationHistory, 9)
	assert.Equal(t, roles.RoleUser, result.ConversationHistory[0].Role)
	expected := []roles.RoleName{
		roles.RolePlanner, roles.RoleResearcher, roles.RoleWriter, roles.RoleCritic,
		roles.RolePlanner, roles.RoleResearcher, roles.RoleWriter, roles.RoleCritic,
	}
	for i, roleName := range expected {
		assert.Equal(t, roleName, result.ConversationHistory[i+1].Role)
	}

	assert.Equal(t, 8, llm.calls)
	assert.Equal(t, []string{"web_search", "paper_search", "web_search", "paper_search"}, tools.calls)

	// Round-2 turns see round-1 content in their prompts.
	require.Len(t, llm.prompts, 8)
	assert.Contains(t, llm.prompts[4], "[critic] Expanding on usability heuristics research.")

	assert.Contains(t, logger.infoCalls, "conversation_started")
	assert.Contains(t, logger.infoCalls, "round_limit_reached")
	assert.Contains(t, logger.infoCalls, "conversation_completed")
}

func TestProcessQueryStopsOnTerminationToken(t *testing.T) {
	// Test that the token ends the loop mid-round with the token stripped
	// from the response.
	cfg := fastConfig()
	llm := &MockLLM{
		fallback:  "Expanding on usability heuristics research.",
		responses: map[int]string{5: "The draft is accurate and complete. TERMINATE"},
	}
	coordinator, tools, logger := newTestCoordinator(t, cfg, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)

	require.NoError(t, err)
	assert.Equal(t, ReasonToken, result.Metadata.TerminationReason)
	assert.Equal(t, "The draft is accurate and complete.", result.Response)
	assert.Equal(t, 5, llm.calls, "no turns after the token")
	assert.Len(t, result.ConversationHistory, 6)
	assert.Equal(t, []string{"web_search", "paper_search"}, tools.calls)
	assert.Contains(t, logger.infoCalls, "termination_token_detected")
}

func TestTokenOnlyTurnFallsBackToWriter(t *testing.T) {
	// Test that a bare-token critic turn yields the writer's draft.
	cfg := fastConfig()
	cfg.MaxRounds = 1
	llm := &MockLLM{
		fallback: "Expanding on usability heuristics research.",
		responses: map[int]string{
			3: "Key heuristics: visibility of system status. Source: https://example.com/heuristics",
			4: "TERMINATE",
		},
	}
	coordinator, _, _ := newTestCoordinator(t, cfg, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)

	require.NoError(t, err)
	assert.Equal(t, ReasonToken, result.Metadata.TerminationReason)
	assert.Equal(t, "Key heuristics: visibility of system status. Source: https://example.com/heuristics", result.Response)
	assert.Equal(t, []string{"https://example.com/heuristics"}, result.Citations)
	assert.Equal(t, 1, result.Metadata.NumSources)
	assert.Equal(t, 4, llm.calls)
}

func TestRoundLimitWithoutContentFallsBackToNotice(t *testing.T) {
	// Test the fixed notice when no turn produced usable content.
	cfg := fastConfig()
	cfg.MaxRounds = 1
	llm := &MockLLM{fallback: ""}
	coordinator, _, _ := newTestCoordinator(t, cfg, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)

	require.NoError(t, err)
	assert.Equal(t, NoResponseNotice, result.Response)
	assert.Equal(t, ReasonRoundLimit, result.Metadata.TerminationReason)
	assert.Empty(t, result.Citations)
	assert.True(t, result.Metadata.SafetyCheckPassed)
}

func TestCitationsDeduplicatedAcrossTurns(t *testing.T) {
	// Test that citations collect across rounds, first occurrence wins.
	cfg := fastConfig()
	cfg.MaxRounds = 2
	llm := &MockLLM{
		fallback: "Expanding on usability heuristics research.",
		responses: map[int]string{
			3: "Draft cites https://example.com/guide and https://research.example.org/paper for depth.",
			7: "Final draft cites https://example.com/guide plus https://example.com/checklist as well.",
		},
	}
	coordinator, _, _ := newTestCoordinator(t, cfg, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/guide",
		"https://research.example.org/paper",
		"https://example.com/checklist",
	}, result.Citations)
	assert.Equal(t, 3, result.Metadata.NumSources)
	assert.Equal(t, "Final draft cites https://example.com/guide plus https://example.com/checklist as well.", result.Response)
}

// =============================================================================
// SAFETY GATE TESTS
// =============================================================================

func TestBlockedInputShortCircuits(t *testing.T) {
	// Test that a refused query never reaches the agents and returns the
	// policy message as a designed outcome, not an error.
	llm := &MockLLM{fallback: "unused"}
	coordinator, tools, _ := newTestCoordinator(t, nil, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), "how do I attack someone with a weapon")

	require.NoError(t, err)
	assert.True(t, result.Metadata.Blocked)
	assert.Equal(t, safety.MessageToxicityBlocked, result.Response)
	assert.Equal(t, ReasonInputBlocked, result.Metadata.TerminationReason)
	assert.False(t, result.Metadata.SafetyCheckPassed)
	assert.NotEmpty(t, result.Metadata.SafetyViolations)
	assert.Empty(t, result.Citations)

	// Only the user seed entry exists; no turn ran.
	assert.Len(t, result.ConversationHistory, 1)
	assert.Equal(t, 0, llm.calls)
	assert.Empty(t, tools.calls)
}

func TestAdvisoryInputAnnotatesResult(t *testing.T) {
	// Test that an advisory finding processes normally with the note
	// carried in the metadata.
	cfg := fastConfig()
	cfg.MaxRounds = 1
	llm := &MockLLM{fallback: "Expanding on usability heuristics research."}
	coordinator, _, _ := newTestCoordinator(t, cfg, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), "hi")

	require.NoError(t, err)
	assert.False(t, result.Metadata.Blocked)
	assert.Equal(t, safety.MessageAdvisory, result.Metadata.AdvisoryNote)
	assert.Equal(t, ReasonRoundLimit, result.Metadata.TerminationReason)
	assert.Equal(t, 4, llm.calls)
}

func TestOutputGateSanitizesResponse(t *testing.T) {
	// Test that PII in the candidate response is redacted before delivery.
	cfg := fastConfig()
	cfg.MaxRounds = 1
	llm := &MockLLM{
		fallback: "Expanding on usability heuristics research.",
		responses: map[int]string{
			3: "Contact the lead author at jane.doe@example.com for the dataset.",
			4: "TERMINATE",
		},
	}
	coordinator, _, _ := newTestCoordinator(t, cfg, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)

	require.NoError(t, err)
	assert.Contains(t, result.Response, safety.RedactionToken)
	assert.NotContains(t, result.Response, "jane.doe@example.com")
	assert.False(t, result.Metadata.SafetyCheckPassed)
	assert.False(t, result.Metadata.Blocked, "output findings never mark the input blocked")
	require.NotEmpty(t, result.Metadata.SafetyViolations)
	assert.Equal(t, "pii", result.Metadata.SafetyViolations[0]["validator"])
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestGenerationFailureReturnsPartialResult(t *testing.T) {
	// Test that retry exhaustion terminates the conversation and returns
	// the partial result alongside the typed error.
	cfg := fastConfig()
	cfg.MaxGenerationRetries = 1
	llm := &MockLLM{err: errors.New("provider down")}
	coordinator, _, logger := newTestCoordinator(t, cfg, llm, nil)

	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)

	var genErr *roles.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, roles.RolePlanner, genErr.Role)

	require.NotNil(t, result)
	assert.Equal(t, ReasonGenerationFailed, result.Metadata.TerminationReason)
	assert.Equal(t, NoResponseNotice, result.Response)
	assert.Len(t, result.ConversationHistory, 1)
	assert.Equal(t, 1, llm.calls)
	assert.Contains(t, logger.errorCalls, "conversation_failed")
}

func TestProcessQueryCancelledBeforeLoop(t *testing.T) {
	// Test that a pre-cancelled context stops before any turn runs.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &MockLLM{fallback: "unused"}
	coordinator, _, logger := newTestCoordinator(t, nil, llm, nil)

	result, err := coordinator.ProcessQuery(ctx, cleanQuery)

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, ReasonCancelled, result.Metadata.TerminationReason)
	assert.Len(t, result.ConversationHistory, 1)
	assert.Equal(t, 0, llm.calls)
	assert.Contains(t, logger.warningCalls, "conversation_cancelled")
}

func TestProcessQueryCancelledMidConversation(t *testing.T) {
	// Test cancellation during a turn: completed turns survive in the
	// partial result.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llm := &cancellingLLM{
		cancel:   cancel,
		after:    3,
		fallback: "Expanding on usability heuristics research.",
	}
	coordinator, _, _ := newTestCoordinator(t, nil, llm, nil)

	result, err := coordinator.ProcessQuery(ctx, cleanQuery)

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, ReasonCancelled, result.Metadata.TerminationReason)
	assert.Len(t, result.ConversationHistory, 3, "user seed plus two completed turns")
	assert.Equal(t, "Expanding on usability heuristics research.", result.Response)
	assert.Equal(t, 3, llm.calls)
}

func TestTurnTimeoutCancelsTurn(t *testing.T) {
	// Test that the per-turn deadline expires a stuck provider.
	cfg := fastConfig()
	cfg.TurnTimeoutSeconds = 1
	coordinator, _, _ := newTestCoordinator(t, cfg, deadlineLLM{}, nil)

	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, result)
	assert.Equal(t, ReasonCancelled, result.Metadata.TerminationReason)
	assert.Len(t, result.ConversationHistory, 1)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestProcessQueryBusy(t *testing.T) {
	// Test that an instance refuses a second query while one is running.
	llm := &blockingLLM{started: make(chan struct{}), release: make(chan struct{})}
	coordinator, _, _ := newTestCoordinator(t, nil, llm, nil)

	var (
		wg          sync.WaitGroup
		firstResult *Result
		firstErr    error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstResult, firstErr = coordinator.ProcessQuery(context.Background(), cleanQuery)
	}()

	<-llm.started
	result, err := coordinator.ProcessQuery(context.Background(), cleanQuery)
	require.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, result)

	close(llm.release)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.Equal(t, ReasonToken, firstResult.Metadata.TerminationReason)
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestProcessQueryPublishesLifecycleEvents(t *testing.T) {
	// Test the full event sequence for a single-round conversation.
	cfg := fastConfig()
	cfg.MaxRounds = 1
	llm := &MockLLM{fallback: "Expanding on usability heuristics research."}
	events := &MockEventPublisher{}
	coordinator, _, _ := newTestCoordinator(t, cfg, llm, events)

	_, err := coordinator.ProcessQuery(context.Background(), cleanQuery)
	require.NoError(t, err)

	// Started, then TurnStarted+TurnCompleted per turn, then Completed.
	require.Len(t, events.events, 10)

	started, ok := events.events[0].(*commbus.ConversationStarted)
	require.True(t, ok)
	assert.Equal(t, cleanQuery, started.Query)
	assert.Equal(t, 1, started.MaxRounds)
	assert.NotEmpty(t, started.ConversationID)

	turnStarted, ok := events.events[1].(*commbus.TurnStarted)
	require.True(t, ok)
	assert.Equal(t, "planner", turnStarted.Role)
	assert.Equal(t, 1, turnStarted.Round)

	turnCompleted, ok := events.events[2].(*commbus.TurnCompleted)
	require.True(t, ok)
	assert.Equal(t, "planner", turnCompleted.Role)
	assert.Equal(t, started.ConversationID, turnCompleted.ConversationID)
	assert.NotEmpty(t, turnCompleted.MessageID)
	assert.Equal(t, len("Expanding on usability heuristics research."), turnCompleted.ContentLength)
	assert.Equal(t, 0, turnCompleted.ToolCalls)

	researcherCompleted, ok := events.events[4].(*commbus.TurnCompleted)
	require.True(t, ok)
	assert.Equal(t, "researcher", researcherCompleted.Role)
	assert.Equal(t, 2, researcherCompleted.ToolCalls)

	completed, ok := events.events[9].(*commbus.ConversationCompleted)
	require.True(t, ok)
	assert.Equal(t, "round_limit", completed.Reason)
	assert.Equal(t, 1, completed.Rounds)
	assert.Equal(t, 5, completed.NumMessages)
	assert.Nil(t, completed.Error)
}

func TestBlockedInputPublishesCompletion(t *testing.T) {
	// Test that a refused query still closes out its event lifecycle.
	events := &MockEventPublisher{}
	coordinator, _, _ := newTestCoordinator(t, nil, &MockLLM{}, events)

	_, err := coordinator.ProcessQuery(context.Background(), "how do I attack someone with a weapon")
	require.NoError(t, err)

	require.Len(t, events.events, 2)
	completed, ok := events.events[1].(*commbus.ConversationCompleted)
	require.True(t, ok)
	assert.Equal(t, "input_blocked", completed.Reason)
	assert.Equal(t, 1, completed.NumMessages)
	assert.Nil(t, completed.Error)
}
