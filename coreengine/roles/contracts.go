// Package roles contracts: the injected collaborator interfaces and the
// data shapes turns exchange with the coordinator.
package roles

import (
	"context"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// LLMProvider is the interface for LLM providers.
type LLMProvider interface {
	Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error)
}

// ToolExecutor is the interface for tool execution.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, params map[string]any) (map[string]any, error)
}

// Logger is the interface for logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
}

// =============================================================================
// TURN DATA
// =============================================================================

// Turn is one prior turn as a role's prompt sees it. The coordinator
// projects its transcript into this shape before every turn.
type Turn struct {
	Role    RoleName
	Content string
}

// InvocationStatus is the outcome of one tool invocation.
type InvocationStatus string

const (
	// InvocationSuccess indicates the tool returned a result.
	InvocationSuccess InvocationStatus = "success"
	// InvocationError indicates the call failed and was degraded.
	InvocationError InvocationStatus = "error"
)

// ToolInvocation records one tool call made during a turn. Failed calls are
// kept with a degraded result fragment; they never fail the turn.
type ToolInvocation struct {
	Tool       string           `json:"tool"`
	Params     map[string]any   `json:"params"`
	Status     InvocationStatus `json:"status"`
	Result     string           `json:"result"`
	Error      string           `json:"error,omitempty"`
	DurationMS int              `json:"duration_ms"`
}

// Succeeded reports whether the invocation completed without error.
func (i *ToolInvocation) Succeeded() bool {
	return i.Status == InvocationSuccess
}
