package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridian-research-org/assistantcore/coreengine/roles"
)

// =============================================================================
// STATE
// =============================================================================

// State is the conversation lifecycle state.
type State string

const (
	// StateIdle marks a transcript created but not yet running.
	StateIdle State = "idle"

	// StateRunning marks the turn loop in progress.
	StateRunning State = "running"

	// StateTerminated marks a finished conversation. Reason says why.
	StateTerminated State = "terminated"
)

// TerminationReason says why a conversation ended.
type TerminationReason string

const (
	// ReasonToken marks termination by the configured token in a turn.
	ReasonToken TerminationReason = "token"

	// ReasonRoundLimit marks termination by the round cap.
	ReasonRoundLimit TerminationReason = "round_limit"

	// ReasonInputBlocked marks a query refused by the input gate; no turns ran.
	ReasonInputBlocked TerminationReason = "input_blocked"

	// ReasonGenerationFailed marks a role exhausting its generation retries.
	ReasonGenerationFailed TerminationReason = "generation_failed"

	// ReasonCancelled marks context cancellation or deadline expiry.
	ReasonCancelled TerminationReason = "cancelled"
)

// =============================================================================
// MESSAGE
// =============================================================================

// Message is one committed transcript entry. Entries are immutable once
// appended.
type Message struct {
	MessageID       string                 `json:"message_id"`
	Role            roles.RoleName         `json:"role"`
	Content         string                 `json:"content"`
	ToolInvocations []roles.ToolInvocation `json:"tool_invocations,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// NewMessage creates a transcript entry with a fresh ID.
func NewMessage(role roles.RoleName, content string, invocations []roles.ToolInvocation) Message {
	return Message{
		MessageID:       "msg_" + uuid.New().String()[:16],
		Role:            role,
		Content:         content,
		ToolInvocations: invocations,
		CreatedAt:       time.Now().UTC(),
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the mutable state of one conversation. It is created at the
// start of a query, mutated only by the Coordinator, and discarded once the
// result is assembled. The seeding query is attributed to the user
// pseudo-role as the first entry.
type Transcript struct {
	ConversationID string            `json:"conversation_id"`
	Query          string            `json:"query"`
	Messages       []Message         `json:"messages"`
	Round          int               `json:"round"`
	MaxRounds      int               `json:"max_rounds"`
	State          State             `json:"state"`
	Reason         TerminationReason `json:"reason,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

// NewTranscript creates an idle transcript seeded with the user query.
func NewTranscript(query string, maxRounds int) *Transcript {
	t := &Transcript{
		ConversationID: "conv_" + uuid.New().String()[:16],
		Query:          query,
		Messages:       []Message{},
		MaxRounds:      maxRounds,
		State:          StateIdle,
		StartedAt:      time.Now().UTC(),
		Metadata:       map[string]any{},
	}
	t.Append(NewMessage(roles.RoleUser, query, nil))
	return t
}

// Append commits a message to the transcript.
func (t *Transcript) Append(msg Message) {
	t.Messages = append(t.Messages, msg)
}

// TurnCount counts agent turns; the user seed entry is excluded.
func (t *Transcript) TurnCount() int {
	count := 0
	for _, msg := range t.Messages {
		if msg.Role.IsAgent() {
			count++
		}
	}
	return count
}

// LastByRole returns the most recent message by the given role and whether
// one exists.
func (t *Transcript) LastByRole(role roles.RoleName) (Message, bool) {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == role {
			return t.Messages[i], true
		}
	}
	return Message{}, false
}

// LastAgentMessage returns the most recent agent turn and whether one exists.
func (t *Transcript) LastAgentMessage() (Message, bool) {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role.IsAgent() {
			return t.Messages[i], true
		}
	}
	return Message{}, false
}

// Terminate moves the transcript to its final state and stamps completion.
// Once terminated the first reason wins; later calls are no-ops.
func (t *Transcript) Terminate(reason TerminationReason) {
	if t.State == StateTerminated {
		return
	}
	t.State = StateTerminated
	t.Reason = reason
	completed := time.Now().UTC()
	t.CompletedAt = &completed
}

// Turns projects the transcript into the shape role prompts consume. The
// user seed entry is excluded; every agent turn carries its content only.
func (t *Transcript) Turns() []roles.Turn {
	turns := make([]roles.Turn, 0, len(t.Messages))
	for _, msg := range t.Messages {
		if !msg.Role.IsAgent() {
			continue
		}
		turns = append(turns, roles.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

// Snapshot returns a deep copy of the committed messages for result
// assembly. Callers may hold the copy after the transcript is discarded.
func (t *Transcript) Snapshot() []Message {
	messages := make([]Message, len(t.Messages))
	for i, msg := range t.Messages {
		copied := msg
		if msg.ToolInvocations != nil {
			copied.ToolInvocations = make([]roles.ToolInvocation, len(msg.ToolInvocations))
			for j, inv := range msg.ToolInvocations {
				copiedInv := inv
				if inv.Params != nil {
					copiedInv.Params = make(map[string]any, len(inv.Params))
					for k, v := range inv.Params {
						copiedInv.Params[k] = v
					}
				}
				copied.ToolInvocations[j] = copiedInv
			}
		}
		messages[i] = copied
	}
	return messages
}
