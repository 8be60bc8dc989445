// Package tools tests for ToolExecutor.
package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-research-org/assistantcore/commbus"
)

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

func newTestExecutor() *ToolExecutor {
	return NewToolExecutor(&MockLogger{})
}

// =============================================================================
// TOOL EXECUTOR TESTS
// =============================================================================

func TestNewToolExecutor(t *testing.T) {
	// Test creating a new tool executor.
	executor := newTestExecutor()

	assert.NotNil(t, executor)
	assert.Empty(t, executor.List())
}

func TestRegisterTool(t *testing.T) {
	// Test registering a tool.
	executor := newTestExecutor()

	def := &ToolDefinition{
		Name:        "test_tool",
		Description: "A test tool",
		Category:    "research",
		RiskLevel:   "low",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"result": "success"}, nil
		},
	}

	err := executor.Register(def)

	require.NoError(t, err)
	assert.True(t, executor.Has("test_tool"))
	assert.Contains(t, executor.List(), "test_tool")
}

func TestRegisterToolWithoutName(t *testing.T) {
	// Test registering a tool without name fails.
	executor := newTestExecutor()

	def := &ToolDefinition{
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}

	err := executor.Register(def)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestRegisterToolWithoutHandler(t *testing.T) {
	// Test registering a tool without handler fails.
	executor := newTestExecutor()

	err := executor.Register(&ToolDefinition{Name: "broken_tool"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler is required")
}

func TestExecuteTool(t *testing.T) {
	// Test executing a registered tool.
	executor := newTestExecutor()

	executor.Register(&ToolDefinition{
		Name: "echo_tool",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{
				"echo":   params["input"],
				"status": "success",
			}, nil
		},
	})

	result, err := executor.Execute(context.Background(), "echo_tool", map[string]any{"input": "hello"})

	require.NoError(t, err)
	assert.Equal(t, "hello", result["echo"])
	assert.Equal(t, "success", result["status"])
}

func TestExecuteToolNotFound(t *testing.T) {
	// Test that an unknown tool yields a typed invocation error.
	executor := newTestExecutor()

	result, err := executor.Execute(context.Background(), "nonexistent_tool", nil)

	require.Error(t, err)
	assert.Nil(t, result)
	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "nonexistent_tool", invErr.Tool)
	assert.Contains(t, err.Error(), "tool not found")
}

func TestExecuteToolError(t *testing.T) {
	// Test that handler failures are wrapped and preserve the cause.
	executor := newTestExecutor()

	cause := errors.New("upstream unreachable")
	executor.Register(&ToolDefinition{
		Name: "error_tool",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, cause
		},
	})

	result, err := executor.Execute(context.Background(), "error_tool", nil)

	require.Error(t, err)
	assert.Nil(t, result)
	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "error_tool", invErr.Tool)
	assert.ErrorIs(t, err, cause)
}

func TestExecuteToolFailureLogged(t *testing.T) {
	// Test that handler failures are logged with the tool name.
	logger := &MockLogger{}
	executor := NewToolExecutor(logger)
	executor.Register(&ToolDefinition{
		Name: "flaky_tool",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, errors.New("boom")
		},
	})

	_, err := executor.Execute(context.Background(), "flaky_tool", nil)

	require.Error(t, err)
	assert.Contains(t, logger.warningCalls, "tool_execution_failed")
}

func TestHasTool(t *testing.T) {
	// Test checking if a tool exists.
	executor := newTestExecutor()

	assert.False(t, executor.Has("test_tool"))

	executor.Register(&ToolDefinition{
		Name: "test_tool",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, nil
		},
	})

	assert.True(t, executor.Has("test_tool"))
	assert.False(t, executor.Has("other_tool"))
}

func TestListToolsSorted(t *testing.T) {
	// Test that listing returns names in sorted order.
	executor := newTestExecutor()

	handler := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return nil, nil
	}

	executor.Register(&ToolDefinition{Name: "web_search", Handler: handler})
	executor.Register(&ToolDefinition{Name: "paper_search", Handler: handler})

	assert.Equal(t, []string{"paper_search", "web_search"}, executor.List())
}

func TestGetDefinition(t *testing.T) {
	// Test getting a tool definition.
	executor := newTestExecutor()

	executor.Register(&ToolDefinition{
		Name:        "my_tool",
		Description: "My tool description",
		Category:    "research",
		RiskLevel:   "medium",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, nil
		},
	})

	retrieved := executor.GetDefinition("my_tool")

	require.NotNil(t, retrieved)
	assert.Equal(t, "my_tool", retrieved.Name)
	assert.Equal(t, "My tool description", retrieved.Description)
	assert.Equal(t, "research", retrieved.Category)
	assert.Equal(t, "medium", retrieved.RiskLevel)

	assert.Nil(t, executor.GetDefinition("nonexistent"))
}

func TestExecuteWithContext(t *testing.T) {
	// Test that context is passed to handler.
	executor := newTestExecutor()

	type ctxKey string
	key := ctxKey("test_key")

	executor.Register(&ToolDefinition{
		Name: "context_tool",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"context_value": ctx.Value(key)}, nil
		},
	})

	ctx := context.WithValue(context.Background(), key, "test_value")
	result, err := executor.Execute(ctx, "context_tool", nil)

	require.NoError(t, err)
	assert.Equal(t, "test_value", result["context_value"])
}

func TestToolOverwrite(t *testing.T) {
	// Test that registering a tool with the same name overwrites.
	executor := newTestExecutor()

	executor.Register(&ToolDefinition{Name: "tool", Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"version": 1}, nil
	}})
	result1, _ := executor.Execute(context.Background(), "tool", nil)
	assert.Equal(t, 1, result1["version"])

	executor.Register(&ToolDefinition{Name: "tool", Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"version": 2}, nil
	}})
	result2, _ := executor.Execute(context.Background(), "tool", nil)
	assert.Equal(t, 2, result2["version"])
}

// =============================================================================
// EVENT PUBLISHING TESTS
// =============================================================================

// MockEventPublisher captures published events.
type MockEventPublisher struct {
	events []commbus.Message
}

func (m *MockEventPublisher) Publish(ctx context.Context, event commbus.Message) error {
	m.events = append(m.events, event)
	return nil
}

func TestExecutePublishesLifecycleEvents(t *testing.T) {
	// Test that a successful run publishes ToolStarted then ToolCompleted.
	executor := newTestExecutor()
	publisher := &MockEventPublisher{}
	executor.SetEventPublisher(publisher)

	executor.Register(&ToolDefinition{
		Name: "echo_tool",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	})

	_, err := executor.Execute(context.Background(), "echo_tool", map[string]any{"query": "transformers"})

	require.NoError(t, err)
	require.Len(t, publisher.events, 2)

	started, ok := publisher.events[0].(*commbus.ToolStarted)
	require.True(t, ok)
	assert.Equal(t, "echo_tool", started.Tool)
	assert.Equal(t, "transformers", started.ParamsPreview["query"])

	completed, ok := publisher.events[1].(*commbus.ToolCompleted)
	require.True(t, ok)
	assert.Equal(t, "echo_tool", completed.Tool)
	assert.Equal(t, "success", completed.Status)
	assert.Nil(t, completed.Error)
}

func TestExecutePublishesErrorEvent(t *testing.T) {
	// Test that handler failures publish a ToolCompleted with the cause.
	executor := newTestExecutor()
	publisher := &MockEventPublisher{}
	executor.SetEventPublisher(publisher)

	executor.Register(&ToolDefinition{
		Name: "error_tool",
		Handler: func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return nil, errors.New("upstream unreachable")
		},
	})

	_, err := executor.Execute(context.Background(), "error_tool", nil)

	require.Error(t, err)
	require.Len(t, publisher.events, 2)
	completed := publisher.events[1].(*commbus.ToolCompleted)
	assert.Equal(t, "error", completed.Status)
	require.NotNil(t, completed.Error)
	assert.Equal(t, "upstream unreachable", *completed.Error)
}

func TestExecutePublishesNotFoundEvent(t *testing.T) {
	// Test that an unknown tool publishes a not_found completion.
	executor := newTestExecutor()
	publisher := &MockEventPublisher{}
	executor.SetEventPublisher(publisher)

	_, err := executor.Execute(context.Background(), "ghost_tool", nil)

	require.Error(t, err)
	require.Len(t, publisher.events, 2)
	completed := publisher.events[1].(*commbus.ToolCompleted)
	assert.Equal(t, "ghost_tool", completed.Tool)
	assert.Equal(t, "not_found", completed.Status)
}

func TestPreviewParamsTruncation(t *testing.T) {
	// Test that long parameter values are truncated in event previews.
	preview := previewParams(map[string]any{
		"short": "hello",
		"long":  strings.Repeat("x", 500),
	})

	assert.Equal(t, "hello", preview["short"])
	assert.Len(t, preview["long"], maxParamPreviewLen+3)
	assert.True(t, strings.HasSuffix(preview["long"], "..."))
}

// =============================================================================
// INTERFACE TESTS
// =============================================================================

func TestToolExecutorImplementsToolRegistry(t *testing.T) {
	// Test that ToolExecutor implements ToolRegistry interface.
	var registry ToolRegistry = newTestExecutor()
	assert.NotNil(t, registry)
}
