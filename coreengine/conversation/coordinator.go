// Package conversation drives the multi-role research conversation: a
// fixed cycle of role turns over a shared transcript, gated by the safety
// manager on the way in and on the way out, bounded by a round limit and a
// termination token.
//
// The Coordinator is the sole public entry point. One instance processes
// one query at a time; independent instances share nothing and may run
// concurrently. Turns execute strictly sequentially because every turn's
// prompt is the transcript committed so far.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/meridian-research-org/assistantcore/commbus"
	"github.com/meridian-research-org/assistantcore/coreengine/config"
	"github.com/meridian-research-org/assistantcore/coreengine/observability"
	"github.com/meridian-research-org/assistantcore/coreengine/roles"
	"github.com/meridian-research-org/assistantcore/coreengine/safety"
	"github.com/meridian-research-org/assistantcore/coreengine/typeutil"
)

var tracer = otel.Tracer("assistantcore/conversation")

// NoResponseNotice is delivered when the loop ends without any usable turn
// content to build a response from.
const NoResponseNotice = "The conversation ended without a final response."

// Logger is the minimal logging surface the conversation package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
}

// EventPublisher publishes conversation lifecycle events. Optional; when
// unset the coordinator runs silently.
type EventPublisher interface {
	Publish(ctx context.Context, event commbus.Message) error
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator owns the turn loop. It builds one Agent per role at
// construction and reuses them across queries; the per-query state lives
// entirely in the Transcript.
type Coordinator struct {
	safety *safety.SafetyManager
	cfg    *config.ConversationConfig
	logger Logger
	events EventPublisher

	agents map[roles.RoleName]*roles.Agent

	// mu makes each instance single-flight. ProcessQuery returns ErrBusy
	// instead of queueing.
	mu sync.Mutex
}

// New builds a coordinator with one agent per role in the fixed turn order.
// A nil cfg uses the global conversation configuration; a nil events
// publisher disables bus notifications.
func New(
	manager *safety.SafetyManager,
	provider roles.LLMProvider,
	executor roles.ToolExecutor,
	cfg *config.ConversationConfig,
	logger Logger,
	events EventPublisher,
) (*Coordinator, error) {
	if manager == nil {
		return nil, fmt.Errorf("safety manager is required")
	}
	if cfg == nil {
		cfg = config.GetConversationConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	table := roles.Table()
	agents := make(map[roles.RoleName]*roles.Agent, len(table))
	for _, name := range roles.TurnOrder() {
		agent, err := roles.NewAgent(table[name], cfg, logger, provider, executor)
		if err != nil {
			return nil, err
		}
		agents[name] = agent
	}

	logger.Info("coordinator_initialized",
		"max_rounds", cfg.MaxRounds,
		"termination_token", cfg.TerminationToken)

	return &Coordinator{
		safety: manager,
		cfg:    cfg,
		logger: logger,
		events: events,
		agents: agents,
	}, nil
}

// ProcessQuery runs one full conversation: input gate, turn loop, citation
// extraction, output gate, result assembly.
//
// A refused query is a designed outcome, not an error: the result carries
// the policy message with Blocked set and err is nil. Generation exhaustion
// and context cancellation return the partial result alongside the error.
func (c *Coordinator) ProcessQuery(ctx context.Context, query string) (*Result, error) {
	if !c.mu.TryLock() {
		return nil, ErrBusy
	}
	defer c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "conversation.process_query",
		oteltrace.WithAttributes(
			attribute.Int("assistant.query.length", len(query)),
		))
	defer span.End()

	start := time.Now()
	transcript := NewTranscript(query, c.cfg.MaxRounds)
	span.SetAttributes(attribute.String("assistant.conversation.id", transcript.ConversationID))

	c.logger.Info("conversation_started",
		"conversation_id", transcript.ConversationID,
		"query_length", len(query),
		"max_rounds", transcript.MaxRounds)
	c.publish(ctx, &commbus.ConversationStarted{
		ConversationID: transcript.ConversationID,
		Query:          query,
		MaxRounds:      transcript.MaxRounds,
	})

	inputCheck := c.safety.CheckInput(ctx, query)
	if !inputCheck.Safe {
		transcript.Terminate(ReasonInputBlocked)
		durationMS := int(time.Since(start).Milliseconds())
		result := c.blockedResult(transcript, inputCheck, durationMS)
		c.finish(ctx, span, transcript, "input_blocked", durationMS, nil)
		return result, nil
	}
	if inputCheck.Message != "" {
		transcript.Metadata["advisory_note"] = inputCheck.Message
	}

	transcript.State = StateRunning
	var runErr error

rounds:
	for round := 1; round <= c.cfg.MaxRounds; round++ {
		transcript.Round = round
		for _, roleName := range roles.TurnOrder() {
			select {
			case <-ctx.Done():
				c.logger.Warning("conversation_cancelled",
					"conversation_id", transcript.ConversationID,
					"round", round,
					"completed_turns", transcript.TurnCount())
				transcript.Terminate(ReasonCancelled)
				runErr = ctx.Err()
				break rounds
			default:
			}

			msg, turnDurationMS, turnErr := c.takeTurn(ctx, transcript, roleName, round)
			if turnErr != nil {
				if ctx.Err() != nil || errors.Is(turnErr, context.Canceled) || errors.Is(turnErr, context.DeadlineExceeded) {
					transcript.Terminate(ReasonCancelled)
				} else {
					transcript.Terminate(ReasonGenerationFailed)
				}
				runErr = turnErr
				break rounds
			}

			transcript.Append(msg)
			c.publish(ctx, &commbus.TurnCompleted{
				ConversationID: transcript.ConversationID,
				MessageID:      msg.MessageID,
				Role:           string(msg.Role),
				Round:          round,
				ContentLength:  len(msg.Content),
				ToolCalls:      len(msg.ToolInvocations),
				DurationMS:     turnDurationMS,
			})

			if strings.Contains(msg.Content, c.cfg.TerminationToken) {
				c.logger.Info("termination_token_detected",
					"conversation_id", transcript.ConversationID,
					"role", string(roleName),
					"round", round)
				transcript.Terminate(ReasonToken)
				break rounds
			}
		}
	}

	if transcript.State != StateTerminated {
		c.logger.Info("round_limit_reached",
			"conversation_id", transcript.ConversationID,
			"rounds", transcript.Round)
		transcript.Terminate(ReasonRoundLimit)
	}

	durationMS := int(time.Since(start).Milliseconds())
	result := c.assembleResult(ctx, transcript, durationMS)

	status := "completed"
	switch transcript.Reason {
	case ReasonCancelled:
		status = "cancelled"
	case ReasonGenerationFailed:
		status = "generation_failed"
	}
	c.finish(ctx, span, transcript, status, durationMS, runErr)

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// takeTurn runs one role's turn under the per-turn deadline. The message is
// built but not committed; the caller appends on success.
func (c *Coordinator) takeTurn(ctx context.Context, transcript *Transcript, roleName roles.RoleName, round int) (Message, int, error) {
	c.publish(ctx, &commbus.TurnStarted{
		ConversationID: transcript.ConversationID,
		Role:           string(roleName),
		Round:          round,
	})

	turnCtx := ctx
	if c.cfg.TurnTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TurnTimeoutSeconds)*time.Second)
		defer cancel()
	}

	start := time.Now()
	content, invocations, err := c.agents[roleName].TakeTurn(turnCtx, transcript.Query, transcript.Turns())
	durationMS := int(time.Since(start).Milliseconds())
	if err != nil {
		return Message{}, durationMS, err
	}

	return NewMessage(roleName, content, invocations), durationMS, nil
}

// candidateResponse picks the text the output gate screens. Token
// termination takes the terminating turn's content with the token stripped;
// everything else prefers the most recent Writer turn, then the last agent
// turn, then the fixed notice.
func (c *Coordinator) candidateResponse(transcript *Transcript) string {
	if transcript.Reason == ReasonToken {
		if last, ok := transcript.LastAgentMessage(); ok {
			if stripped := c.stripToken(last.Content); stripped != "" {
				return stripped
			}
		}
	}
	if writer, ok := transcript.LastByRole(roles.RoleWriter); ok {
		if stripped := c.stripToken(writer.Content); stripped != "" {
			return stripped
		}
	}
	if last, ok := transcript.LastAgentMessage(); ok {
		if stripped := c.stripToken(last.Content); stripped != "" {
			return stripped
		}
	}
	return NoResponseNotice
}

// stripToken removes the termination token and surrounding whitespace.
func (c *Coordinator) stripToken(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, c.cfg.TerminationToken, ""))
}

// assembleResult extracts citations, runs the output gate, and packages the
// result. Used for completed and failed runs alike so partial transcripts
// still come back screened.
func (c *Coordinator) assembleResult(ctx context.Context, transcript *Transcript, durationMS int) *Result {
	candidate := c.candidateResponse(transcript)
	citations := ExtractCitations(transcript.Messages, c.cfg.MaxCitations)

	outputCheck := c.safety.CheckOutput(ctx, candidate)

	metadata := Metadata{
		Blocked:           false,
		NumMessages:       len(transcript.Messages),
		NumSources:        len(citations),
		SafetyCheckPassed: outputCheck.Safe,
		TerminationReason: transcript.Reason,
		DurationMS:        durationMS,
		AdvisoryNote:      typeutil.SafeStringDefault(transcript.Metadata["advisory_note"], ""),
	}
	if len(outputCheck.Violations) > 0 {
		metadata.SafetyViolations = safety.ViolationMaps(outputCheck.Violations)
	}

	return &Result{
		Response:            outputCheck.FinalResponse,
		ConversationHistory: transcript.Snapshot(),
		Citations:           citations,
		Metadata:            metadata,
	}
}

// blockedResult packages a refused query. No turns ran; the canned policy
// message is the response and the input findings ride in the metadata.
func (c *Coordinator) blockedResult(transcript *Transcript, check safety.InputCheck, durationMS int) *Result {
	return &Result{
		Response:            check.Message,
		ConversationHistory: transcript.Snapshot(),
		Citations:           []string{},
		Metadata: Metadata{
			Blocked:           true,
			SafetyViolations:  safety.ViolationMaps(check.Violations),
			NumMessages:       len(transcript.Messages),
			NumSources:        0,
			SafetyCheckPassed: false,
			TerminationReason: ReasonInputBlocked,
			DurationMS:        durationMS,
		},
	}
}

// finish records conversation metrics, closes out the span, and publishes
// ConversationCompleted.
func (c *Coordinator) finish(ctx context.Context, span oteltrace.Span, transcript *Transcript, status string, durationMS int, runErr error) {
	observability.RecordConversation(status, durationMS)

	span.SetAttributes(
		attribute.String("assistant.conversation.status", status),
		attribute.String("assistant.conversation.reason", string(transcript.Reason)),
		attribute.Int("assistant.conversation.rounds", transcript.Round),
		attribute.Int("assistant.conversation.messages", len(transcript.Messages)),
		attribute.Int("duration_ms", durationMS),
	)

	event := &commbus.ConversationCompleted{
		ConversationID: transcript.ConversationID,
		Reason:         string(transcript.Reason),
		Rounds:         transcript.Round,
		NumMessages:    len(transcript.Messages),
		DurationMS:     durationMS,
	}

	if runErr != nil {
		msg := runErr.Error()
		event.Error = &msg
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		c.logger.Error("conversation_failed",
			"conversation_id", transcript.ConversationID,
			"reason", string(transcript.Reason),
			"error", runErr.Error(),
			"duration_ms", durationMS)
	} else {
		span.SetStatus(codes.Ok, status)
		c.logger.Info("conversation_completed",
			"conversation_id", transcript.ConversationID,
			"reason", string(transcript.Reason),
			"rounds", transcript.Round,
			"messages", len(transcript.Messages),
			"duration_ms", durationMS)
	}

	c.publish(ctx, event)
}

// publish sends an event when a publisher is attached. Publish failures are
// logged and swallowed; observation never fails a conversation.
func (c *Coordinator) publish(ctx context.Context, event commbus.Message) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Debug("event_publish_failed",
			"event", commbus.GetMessageType(event),
			"error", err.Error())
	}
}
