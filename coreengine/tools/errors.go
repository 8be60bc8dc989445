package tools

import (
	"fmt"
)

// InvocationError wraps any tool execution failure: unknown tool, bad
// parameters, or a handler error. Callers recover from it by degrading to
// a "no results" fragment; it is never fatal to a conversation.
type InvocationError struct {
	Tool  string
	Cause error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool invocation failed: %s: %v", e.Tool, e.Cause)
}

func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// NewInvocationError creates a new InvocationError.
func NewInvocationError(tool string, cause error) *InvocationError {
	return &InvocationError{Tool: tool, Cause: cause}
}
