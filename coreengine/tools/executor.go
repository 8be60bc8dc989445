// Package tools provides the tool registry and the research tools
// available to conversation roles.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/meridian-research-org/assistantcore/commbus"
	"github.com/meridian-research-org/assistantcore/coreengine/observability"
)

var tracer = otel.Tracer("assistantcore/tools")

// maxParamPreviewLen caps parameter values in ToolStarted events.
const maxParamPreviewLen = 80

// Logger is the minimal logging surface the tools package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
}

// EventPublisher publishes tool lifecycle events. Optional; when unset
// the executor runs silently.
type EventPublisher interface {
	Publish(ctx context.Context, event commbus.Message) error
}

// ToolHandler is a function that executes a tool.
type ToolHandler func(ctx context.Context, params map[string]any) (map[string]any, error)

// ToolDefinition defines a tool's metadata and handler.
type ToolDefinition struct {
	Name        string
	Description string
	Category    string
	RiskLevel   string // "low", "medium", "high"
	Handler     ToolHandler
}

// ToolExecutor executes tools by name. Safe for concurrent use.
type ToolExecutor struct {
	logger Logger

	mu     sync.RWMutex
	tools  map[string]*ToolDefinition
	events EventPublisher
}

// NewToolExecutor creates an empty executor.
func NewToolExecutor(logger Logger) *ToolExecutor {
	return &ToolExecutor{
		logger: logger,
		tools:  make(map[string]*ToolDefinition),
	}
}

// SetEventPublisher attaches a publisher for ToolStarted/ToolCompleted
// events.
func (e *ToolExecutor) SetEventPublisher(events EventPublisher) {
	e.mu.Lock()
	e.events = events
	e.mu.Unlock()
}

// Register registers a tool. Re-registering a name replaces the previous
// definition.
func (e *ToolExecutor) Register(def *ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler is required for '%s'", def.Name)
	}

	e.mu.Lock()
	e.tools[def.Name] = def
	e.mu.Unlock()

	e.logger.Debug("tool_registered", "tool", def.Name, "category", def.Category)
	return nil
}

// Execute runs a tool by name. Every failure path returns an
// *InvocationError so callers can treat tool trouble uniformly.
func (e *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]any) (map[string]any, error) {
	e.mu.RLock()
	def, exists := e.tools[toolName]
	events := e.events
	e.mu.RUnlock()

	ctx, span := tracer.Start(ctx, "tool.execute",
		oteltrace.WithAttributes(attribute.String("assistant.tool.name", toolName)))
	defer span.End()

	publishStarted(ctx, events, e.logger, toolName, params)

	if !exists {
		err := NewInvocationError(toolName, fmt.Errorf("tool not found"))
		span.SetStatus(codes.Error, err.Error())
		observability.RecordToolExecution(toolName, "not_found", 0)
		publishCompleted(ctx, events, e.logger, toolName, "not_found", 0, err)
		return nil, err
	}

	start := time.Now()
	result, err := def.Handler(ctx, params)
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		wrapped := NewInvocationError(toolName, err)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		observability.RecordToolExecution(toolName, "error", durationMS)
		publishCompleted(ctx, events, e.logger, toolName, "error", durationMS, err)
		e.logger.Warning("tool_execution_failed",
			"tool", toolName,
			"error", err.Error(),
			"duration_ms", durationMS)
		return nil, wrapped
	}

	span.SetAttributes(attribute.Int("duration_ms", durationMS))
	observability.RecordToolExecution(toolName, "success", durationMS)
	publishCompleted(ctx, events, e.logger, toolName, "success", durationMS, nil)
	e.logger.Debug("tool_executed", "tool", toolName, "duration_ms", durationMS)
	return result, nil
}

func publishStarted(ctx context.Context, events EventPublisher, logger Logger, toolName string, params map[string]any) {
	if events == nil {
		return
	}
	event := &commbus.ToolStarted{Tool: toolName, ParamsPreview: previewParams(params)}
	if err := events.Publish(ctx, event); err != nil {
		logger.Debug("event_publish_failed", "event", commbus.GetMessageType(event), "error", err.Error())
	}
}

func publishCompleted(ctx context.Context, events EventPublisher, logger Logger, toolName, status string, durationMS int, execErr error) {
	if events == nil {
		return
	}
	event := &commbus.ToolCompleted{Tool: toolName, Status: status, DurationMS: durationMS}
	if execErr != nil {
		msg := execErr.Error()
		event.Error = &msg
	}
	if err := events.Publish(ctx, event); err != nil {
		logger.Debug("event_publish_failed", "event", commbus.GetMessageType(event), "error", err.Error())
	}
}

// previewParams renders parameter values as short strings so large
// payloads never ride on the bus.
func previewParams(params map[string]any) map[string]string {
	preview := make(map[string]string, len(params))
	for key, value := range params {
		rendered := fmt.Sprintf("%v", value)
		if len(rendered) > maxParamPreviewLen {
			rendered = rendered[:maxParamPreviewLen] + "..."
		}
		preview[key] = rendered
	}
	return preview
}

// Has checks if a tool is registered.
func (e *ToolExecutor) Has(toolName string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, exists := e.tools[toolName]
	return exists
}

// List returns all registered tool names, sorted.
func (e *ToolExecutor) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDefinition gets a tool definition by name.
func (e *ToolExecutor) GetDefinition(toolName string) *ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tools[toolName]
}

// ToolRegistry is an interface for tool registration and lookup.
type ToolRegistry interface {
	Register(def *ToolDefinition) error
	Execute(ctx context.Context, toolName string, params map[string]any) (map[string]any, error)
	Has(toolName string) bool
	List() []string
}

// Ensure ToolExecutor implements ToolRegistry
var _ ToolRegistry = (*ToolExecutor)(nil)
