// CommBus message definitions.
//
// This module defines all message types for the assistant communication bus.
// Messages are organized by domain.
//
// Categories:
//   - EVENT: Fire-and-forget, fan-out to subscribers
//   - QUERY: Request-response, single handler
//   - COMMAND: Fire-and-forget, single handler
package commbus

// =============================================================================
// MESSAGE CATEGORIES
// =============================================================================

// MessageCategory represents message routing categories.
type MessageCategory string

const (
	// MessageCategoryEvent represents fire-and-forget, fan-out to all subscribers.
	MessageCategoryEvent MessageCategory = "event"
	// MessageCategoryQuery represents request-response, single handler.
	MessageCategoryQuery MessageCategory = "query"
	// MessageCategoryCommand represents fire-and-forget, single handler.
	MessageCategoryCommand MessageCategory = "command"
)

// =============================================================================
// CONVERSATION LIFECYCLE EVENTS
// =============================================================================

// ConversationStarted is emitted when a query passes the input gate and the
// multi-agent conversation begins.
// Subscribers: progress output, telemetry.
type ConversationStarted struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	MaxRounds      int    `json:"max_rounds"`
}

// Category implements the Message interface.
func (m *ConversationStarted) Category() string { return string(MessageCategoryEvent) }

// ConversationCompleted is emitted when a conversation reaches a terminal
// state (any reason, including blocked input and failures).
// Subscribers: progress output, telemetry.
type ConversationCompleted struct {
	ConversationID string  `json:"conversation_id"`
	Reason         string  `json:"reason"`
	Rounds         int     `json:"rounds"`
	NumMessages    int     `json:"num_messages"`
	DurationMS     int     `json:"duration_ms"`
	Error          *string `json:"error,omitempty"`
}

// Category implements the Message interface.
func (m *ConversationCompleted) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// TURN EVENTS
// =============================================================================

// TurnStarted is emitted when an agent role begins its turn.
// Subscribers: progress output, trace logging.
type TurnStarted struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Round          int    `json:"round"`
}

// Category implements the Message interface.
func (m *TurnStarted) Category() string { return string(MessageCategoryEvent) }

// TurnCompleted is emitted after an agent turn is appended to the transcript.
// Subscribers: progress output, trace logging.
type TurnCompleted struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Role           string `json:"role"`
	Round          int    `json:"round"`
	ContentLength  int    `json:"content_length"`
	ToolCalls      int    `json:"tool_calls"`
	DurationMS     int    `json:"duration_ms"`
}

// Category implements the Message interface.
func (m *TurnCompleted) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// TOOL EXECUTION EVENTS
// =============================================================================

// ToolStarted is emitted when a tool execution begins.
// Subscribers: progress output, telemetry.
type ToolStarted struct {
	Tool          string            `json:"tool"`
	ParamsPreview map[string]string `json:"params_preview,omitempty"`
}

// Category implements the Message interface.
func (m *ToolStarted) Category() string { return string(MessageCategoryEvent) }

// ToolCompleted is emitted when tool execution finishes.
// Subscribers: progress output, telemetry.
type ToolCompleted struct {
	Tool       string  `json:"tool"`
	Status     string  `json:"status"` // "success", "error", "not_found"
	DurationMS int     `json:"duration_ms"`
	Error      *string `json:"error,omitempty"`
}

// Category implements the Message interface.
func (m *ToolCompleted) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// SAFETY EVENTS
// =============================================================================

// SafetyViolationRaised is emitted when a gate check finds violations,
// whether or not the text was blocked. Matched content never rides on the
// bus, only rule identities and counts.
// Subscribers: progress output, telemetry.
type SafetyViolationRaised struct {
	Direction  string `json:"direction"` // "input" or "output"
	Validator  string `json:"validator"`
	Severity   string `json:"severity"`
	Blocked    bool   `json:"blocked"`
	Violations int    `json:"violations"`
}

// Category implements the Message interface.
func (m *SafetyViolationRaised) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// SAFETY QUERIES
// =============================================================================

// GetSafetyStats queries aggregate guardrail statistics.
type GetSafetyStats struct{}

// Category implements the Message interface.
func (m *GetSafetyStats) Category() string { return string(MessageCategoryQuery) }

// IsQuery implements the Query interface.
func (m *GetSafetyStats) IsQuery() {}

// SafetyStatsResponse is the response for GetSafetyStats query.
type SafetyStatsResponse struct {
	TotalEvents   int     `json:"total_events"`
	InputChecks   int     `json:"input_checks"`
	OutputChecks  int     `json:"output_checks"`
	Violations    int     `json:"violations"`
	ViolationRate float64 `json:"violation_rate"`
}

// =============================================================================
// TOOL CATALOG QUERIES
// =============================================================================

// GetToolCatalog queries tool catalog information.
type GetToolCatalog struct {
	Tools []string `json:"tools,omitempty"` // nil = get all registered tools
}

// Category implements the Message interface.
func (m *GetToolCatalog) Category() string { return string(MessageCategoryQuery) }

// IsQuery implements the Query interface.
func (m *GetToolCatalog) IsQuery() {}

// ToolCatalogResponse is the response for GetToolCatalog query.
type ToolCatalogResponse struct {
	Tools []map[string]any `json:"tools"`
}

// =============================================================================
// SAFETY COMMANDS
// =============================================================================

// ClearSafetyEvents is a command to drop the retained safety event history.
type ClearSafetyEvents struct{}

// Category implements the Message interface.
func (m *ClearSafetyEvents) Category() string { return string(MessageCategoryCommand) }

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// TypedMessage is an optional interface for messages that can provide their
// own type name. Useful for ad-hoc messages defined outside this module.
type TypedMessage interface {
	Message
	MessageType() string
}

// GetMessageType returns the type name of a message for routing.
func GetMessageType(msg Message) string {
	// First check if the message can provide its own type
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	// Otherwise use the static type switch
	switch msg.(type) {
	case *ConversationStarted:
		return "ConversationStarted"
	case *ConversationCompleted:
		return "ConversationCompleted"
	case *TurnStarted:
		return "TurnStarted"
	case *TurnCompleted:
		return "TurnCompleted"
	case *ToolStarted:
		return "ToolStarted"
	case *ToolCompleted:
		return "ToolCompleted"
	case *SafetyViolationRaised:
		return "SafetyViolationRaised"
	case *GetSafetyStats:
		return "GetSafetyStats"
	case *GetToolCatalog:
		return "GetToolCatalog"
	case *ClearSafetyEvents:
		return "ClearSafetyEvents"
	default:
		return "Unknown"
	}
}
