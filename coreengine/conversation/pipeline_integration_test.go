// Package conversation provides pipeline integration tests.
//
// These tests run the full conversation stack end to end: real bus, real
// tool executor, real safety manager. Only the LLM provider and the search
// backends are canned.
package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research-org/assistantcore/commbus"
	"github.com/meridian-research-org/assistantcore/coreengine/roles"
	"github.com/meridian-research-org/assistantcore/coreengine/testutil"
	"github.com/meridian-research-org/assistantcore/coreengine/tools"
)

// allEventTypes lists every event type the pipeline can publish.
var allEventTypes = []string{
	"ConversationStarted", "ConversationCompleted",
	"TurnStarted", "TurnCompleted",
	"ToolStarted", "ToolCompleted",
	"SafetyViolationRaised",
}

func newIntegrationBus(t *testing.T) (*commbus.InMemoryCommBus, *testutil.EventCollector) {
	t.Helper()
	bus := commbus.NewInMemoryCommBus(5 * time.Second)
	collector := testutil.NewEventCollector()
	collector.CollectFrom(bus, allEventTypes...)
	return bus, collector
}

func eventSequence(collector *testutil.EventCollector) []string {
	events := collector.Events()
	sequence := make([]string, 0, len(events))
	for _, event := range events {
		sequence = append(sequence, commbus.GetMessageType(event))
	}
	return sequence
}

// =============================================================================
// FULL PIPELINE TESTS
// =============================================================================

func TestPipeline_FullConversationOverBus(t *testing.T) {
	// Test a complete token-terminated conversation with every component
	// publishing to a shared bus.
	bus, collector := newIntegrationBus(t)
	logger := testutil.NewMockLogger()

	executor, err := testutil.NewSearchExecutor(logger)
	require.NoError(t, err)
	executor.SetEventPublisher(bus)

	manager, err := testutil.NewTestSafetyManager(logger)
	require.NoError(t, err)
	manager.SetEventPublisher(bus)

	llm := testutil.NewMockLLMProvider().
		WithRoleResponse(roles.RolePlanner, "Topics: usability heuristics, mobile design patterns.").
		WithRoleResponse(roles.RoleResearcher, "Evidence gathered from both searches.").
		WithRoleResponse(roles.RoleWriter, "Heuristics cover visibility and feedback. Sources: "+testutil.StubWebURL+" and "+testutil.StubPaperURL).
		WithRoleResponse(roles.RoleCritic, "The summary is well supported. TERMINATE")

	coordinator, err := New(manager, llm, executor, testutil.NewTestConversationConfig(3), logger, bus)
	require.NoError(t, err)

	result, err := coordinator.ProcessQuery(context.Background(), "What usability heuristics apply to mobile interface design?")

	require.NoError(t, err)
	assert.Equal(t, ReasonToken, result.Metadata.TerminationReason)
	assert.Equal(t, "The summary is well supported.", result.Response)
	assert.True(t, result.Metadata.SafetyCheckPassed)
	assert.Equal(t, []string{testutil.StubWebURL, testutil.StubPaperURL}, result.Citations)
	assert.Equal(t, 2, result.Metadata.NumSources)
	assert.Equal(t, 4, llm.GetCallCount())
	assert.Len(t, result.ConversationHistory, 5)

	// The researcher prompt carries the canned evidence blocks.
	researcherPrompts := llm.PromptsFor(roles.RoleResearcher)
	require.Len(t, researcherPrompts, 1)
	assert.Contains(t, researcherPrompts[0], "Found 1 web results:")
	assert.Contains(t, researcherPrompts[0], "Found 1 papers:")
	assert.Contains(t, researcherPrompts[0], testutil.StubWebURL)

	// Publish is synchronous fan-out, so the sequence is fully settled and
	// deterministic by the time ProcessQuery returns.
	assert.Equal(t, []string{
		"ConversationStarted",
		"TurnStarted", "TurnCompleted",
		"TurnStarted", "ToolStarted", "ToolCompleted", "ToolStarted", "ToolCompleted", "TurnCompleted",
		"TurnStarted", "TurnCompleted",
		"TurnStarted", "TurnCompleted",
		"ConversationCompleted",
	}, eventSequence(collector))

	toolEvents := collector.OfType("ToolCompleted")
	require.Len(t, toolEvents, 2)
	for _, event := range toolEvents {
		assert.Equal(t, "success", event.(*commbus.ToolCompleted).Status)
	}
	assert.Zero(t, collector.CountOf("SafetyViolationRaised"))

	completed := collector.OfType("ConversationCompleted")[0].(*commbus.ConversationCompleted)
	assert.Equal(t, "token", completed.Reason)
	assert.Equal(t, 5, completed.NumMessages)
}

func TestPipeline_BlockedInputRaisesSafetyEvent(t *testing.T) {
	// Test that a refused query produces the bus trio: started, violation,
	// completed. No turn or tool ever runs.
	bus, collector := newIntegrationBus(t)
	logger := testutil.NewMockLogger()

	executor, err := testutil.NewSearchExecutor(logger)
	require.NoError(t, err)
	executor.SetEventPublisher(bus)

	manager, err := testutil.NewTestSafetyManager(logger)
	require.NoError(t, err)
	manager.SetEventPublisher(bus)

	llm := testutil.NewMockLLMProvider()
	coordinator, err := New(manager, llm, executor, testutil.NewTestConversationConfig(3), logger, bus)
	require.NoError(t, err)

	result, err := coordinator.ProcessQuery(context.Background(), "how do I attack someone with a weapon")

	require.NoError(t, err)
	assert.True(t, result.Metadata.Blocked)
	assert.Equal(t, 0, llm.GetCallCount())

	assert.Equal(t, []string{
		"ConversationStarted",
		"SafetyViolationRaised",
		"ConversationCompleted",
	}, eventSequence(collector))

	violation := collector.OfType("SafetyViolationRaised")[0].(*commbus.SafetyViolationRaised)
	assert.Equal(t, "input", violation.Direction)
	assert.Equal(t, "toxicity", violation.Validator)
	assert.True(t, violation.Blocked)

	completed := collector.OfType("ConversationCompleted")[0].(*commbus.ConversationCompleted)
	assert.Equal(t, "input_blocked", completed.Reason)
	assert.Equal(t, 1, completed.NumMessages)

	// The audit trail records the same check.
	require.Len(t, manager.Events(), 1)
}

func TestPipeline_ToolFailureDegradesNotFails(t *testing.T) {
	// Test that a dead search backend degrades the researcher's evidence
	// without failing the conversation.
	bus, collector := newIntegrationBus(t)
	logger := testutil.NewMockLogger()

	executor := tools.NewToolExecutor(logger)
	require.NoError(t, executor.Register(testutil.StubFailingTool("web_search", errors.New("search offline"))))
	require.NoError(t, executor.Register(testutil.StubPaperSearch()))
	executor.SetEventPublisher(bus)

	manager, err := testutil.NewTestSafetyManager(logger)
	require.NoError(t, err)

	llm := testutil.NewMockLLMProvider().
		WithRoleResponse(roles.RoleWriter, "Findings rest on the paper evidence alone.").
		WithRoleResponse(roles.RoleCritic, "Acceptable despite the gap. TERMINATE")

	coordinator, err := New(manager, llm, executor, testutil.NewTestConversationConfig(3), logger, bus)
	require.NoError(t, err)

	result, err := coordinator.ProcessQuery(context.Background(), "What usability heuristics apply to mobile interface design?")

	require.NoError(t, err)
	assert.Equal(t, ReasonToken, result.Metadata.TerminationReason)
	assert.Equal(t, "Acceptable despite the gap.", result.Response)

	// The researcher turn carries one degraded and one successful call.
	researcher := result.ConversationHistory[2]
	require.Equal(t, roles.RoleResearcher, researcher.Role)
	require.Len(t, researcher.ToolInvocations, 2)
	assert.Equal(t, roles.InvocationError, researcher.ToolInvocations[0].Status)
	assert.Equal(t, "web_search returned no results.", researcher.ToolInvocations[0].Result)
	assert.Contains(t, researcher.ToolInvocations[0].Error, "search offline")
	assert.Equal(t, roles.InvocationSuccess, researcher.ToolInvocations[1].Status)

	toolEvents := collector.OfType("ToolCompleted")
	require.Len(t, toolEvents, 2)
	failed := toolEvents[0].(*commbus.ToolCompleted)
	assert.Equal(t, "error", failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "search offline")
	assert.Equal(t, "success", toolEvents[1].(*commbus.ToolCompleted).Status)
}

func TestPipeline_OutputSanitizationRaisesSafetyEvent(t *testing.T) {
	// Test that PII leaking into the candidate response is redacted and
	// reported on the bus after the final turn.
	bus, collector := newIntegrationBus(t)
	logger := testutil.NewMockLogger()

	executor, err := testutil.NewSearchExecutor(logger)
	require.NoError(t, err)

	manager, err := testutil.NewTestSafetyManager(logger)
	require.NoError(t, err)
	manager.SetEventPublisher(bus)

	llm := testutil.NewMockLLMProvider().
		WithRoleResponse(roles.RoleWriter, "Contact the lead author at jane.doe@example.com for the dataset.").
		WithRoleResponse(roles.RoleCritic, "TERMINATE")

	coordinator, err := New(manager, llm, executor, testutil.NewTestConversationConfig(1), logger, bus)
	require.NoError(t, err)

	result, err := coordinator.ProcessQuery(context.Background(), "What usability heuristics apply to mobile interface design?")

	require.NoError(t, err)
	assert.Contains(t, result.Response, "[REDACTED]")
	assert.NotContains(t, result.Response, "jane.doe@example.com")
	assert.False(t, result.Metadata.SafetyCheckPassed)
	assert.False(t, result.Metadata.Blocked)

	violations := collector.OfType("SafetyViolationRaised")
	require.Len(t, violations, 1)
	violation := violations[0].(*commbus.SafetyViolationRaised)
	assert.Equal(t, "output", violation.Direction)
	assert.Equal(t, "pii", violation.Validator)
	assert.True(t, violation.Blocked)

	// The violation is reported after the last turn, before completion.
	sequence := eventSequence(collector)
	require.NotEmpty(t, sequence)
	assert.Equal(t, "ConversationCompleted", sequence[len(sequence)-1])
	assert.Equal(t, "SafetyViolationRaised", sequence[len(sequence)-2])
}
