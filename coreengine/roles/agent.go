package roles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-research-org/assistantcore/coreengine/config"
	"github.com/meridian-research-org/assistantcore/coreengine/observability"
	"github.com/meridian-research-org/assistantcore/coreengine/typeutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("assistantcore/roles")

// Agent is the single participant class. One Agent per role; behavior is
// driven entirely by the Role definition.
type Agent struct {
	Role   *Role
	Config *config.ConversationConfig
	Logger Logger
	LLM    LLMProvider
	Tools  ToolExecutor

	// Model is the provider model identifier passed to Generate.
	Model string

	// Options is passed through to the provider unchanged. May be nil.
	Options map[string]any
}

// NewAgent creates a new Agent for the given role.
func NewAgent(
	role *Role,
	cfg *config.ConversationConfig,
	logger Logger,
	llm LLMProvider,
	tools ToolExecutor,
) (*Agent, error) {
	if role == nil {
		return nil, fmt.Errorf("role is required")
	}
	if !role.Name.IsAgent() {
		return nil, fmt.Errorf("role '%s' does not take turns", role.Name)
	}
	if llm == nil {
		return nil, fmt.Errorf("role '%s' requires an llm provider", role.Name)
	}
	if role.UsesTools && tools == nil {
		return nil, fmt.Errorf("role '%s' uses_tools=true but no tool_executor", role.Name)
	}

	if cfg == nil {
		cfg = config.GetConversationConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Agent{
		Role:   role,
		Config: cfg,
		Logger: logger,
		LLM:    llm,
		Tools:  tools,
		Model:  "default",
	}, nil
}

// TakeTurn produces this role's next contribution. Tool-using roles gather
// evidence first; all roles then generate against the directive, the
// original query, the transcript so far, and any evidence.
//
// Returned invocations are valid even when err is non-nil.
func (a *Agent) TakeTurn(ctx context.Context, query string, transcript []Turn) (string, []ToolInvocation, error) {
	ctx, span := tracer.Start(ctx, "role.take_turn",
		oteltrace.WithAttributes(
			attribute.String("assistant.role.name", string(a.Role.Name)),
			attribute.Int("assistant.turn.prior_messages", len(transcript)),
		),
	)
	defer span.End()

	startTime := time.Now()

	a.Logger.Info(fmt.Sprintf("%s_started", a.Role.Name))

	var (
		content     string
		invocations []ToolInvocation
		llmCalls    int
		err         error
	)

	defer func() {
		durationMS := int(time.Since(startTime).Milliseconds())

		span.SetAttributes(
			attribute.Int("assistant.llm.calls", llmCalls),
			attribute.Int("duration_ms", durationMS),
		)

		if err != nil {
			observability.RecordTurn(string(a.Role.Name), "error", durationMS)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.Logger.Error(fmt.Sprintf("%s_error", a.Role.Name), "error", err.Error(), "duration_ms", durationMS)
		} else {
			observability.RecordTurn(string(a.Role.Name), "success", durationMS)
			span.SetStatus(codes.Ok, "success")
			a.Logger.Info(fmt.Sprintf("%s_completed", a.Role.Name),
				"duration_ms", durationMS,
				"tool_calls", len(invocations),
			)
		}
	}()

	if a.Role.UsesTools {
		invocations = a.gatherEvidence(ctx, query)
	}

	prompt := a.buildPrompt(query, transcript, invocations)
	content, llmCalls, err = a.generate(ctx, prompt)
	if err != nil {
		return "", invocations, err
	}

	return content, invocations, nil
}

// gatherEvidence runs each allowed tool once, strictly in sequence. A failed
// call degrades to a "no results" fragment; evidence gathering never fails
// the turn.
func (a *Agent) gatherEvidence(ctx context.Context, query string) []ToolInvocation {
	invocations := make([]ToolInvocation, 0, len(evidenceOrder))

	for _, toolName := range evidenceOrder {
		if !a.Role.CanUse(toolName) {
			continue
		}

		params := map[string]any{"query": query}
		start := time.Now()
		result, execErr := a.Tools.Execute(ctx, toolName, params)
		durationMS := int(time.Since(start).Milliseconds())

		if execErr != nil {
			a.Logger.Warning(fmt.Sprintf("%s_tool_degraded", a.Role.Name),
				"tool", toolName,
				"error", execErr.Error(),
				"duration_ms", durationMS,
			)
			invocations = append(invocations, ToolInvocation{
				Tool:       toolName,
				Params:     params,
				Status:     InvocationError,
				Result:     fmt.Sprintf("%s returned no results.", toolName),
				Error:      execErr.Error(),
				DurationMS: durationMS,
			})
			continue
		}

		formatted := typeutil.SafeStringDefault(result["formatted"], "")
		if formatted == "" {
			formatted = fmt.Sprintf("%s returned no results.", toolName)
		}
		invocations = append(invocations, ToolInvocation{
			Tool:       toolName,
			Params:     params,
			Status:     InvocationSuccess,
			Result:     formatted,
			DurationMS: durationMS,
		})
	}

	return invocations
}

// buildPrompt assembles directive, original query, transcript rendering,
// and the evidence block.
func (a *Agent) buildPrompt(query string, transcript []Turn, invocations []ToolInvocation) string {
	var sb strings.Builder
	sb.WriteString(a.Role.Directive)
	sb.WriteString("\n\nResearch query: ")
	sb.WriteString(query)

	if len(transcript) > 0 {
		sb.WriteString("\n\nConversation so far:\n")
		for _, turn := range transcript {
			fmt.Fprintf(&sb, "[%s] %s\n", turn.Role, turn.Content)
		}
	}

	if len(invocations) > 0 {
		sb.WriteString("\nEvidence:\n")
		for _, inv := range invocations {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n", inv.Tool, inv.Result)
		}
	}

	return sb.String()
}

// generate calls the provider with bounded retries. The return count is the
// number of attempts made, recorded per attempt in the llm metrics.
func (a *Agent) generate(ctx context.Context, prompt string) (string, int, error) {
	attempts := a.Config.MaxGenerationRetries
	backoff := time.Duration(a.Config.RetryBackoffMS) * time.Millisecond
	maxBackoff := time.Duration(a.Config.RetryBackoffMaxMS) * time.Millisecond

	calls := 0
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", calls, ctxErr
		}

		calls++
		start := time.Now()
		text, genErr := a.LLM.Generate(ctx, a.Model, prompt, a.Options)
		durationMS := int(time.Since(start).Milliseconds())

		if genErr == nil {
			observability.RecordLLMCall(string(a.Role.Name), "success", durationMS)
			a.Logger.Debug(fmt.Sprintf("%s_llm_response", a.Role.Name),
				"response_length", len(text),
				"response_preview", truncate(text, 200),
			)
			return strings.TrimSpace(text), calls, nil
		}

		observability.RecordLLMCall(string(a.Role.Name), "error", durationMS)
		lastErr = genErr
		a.Logger.Warning(fmt.Sprintf("%s_generation_attempt_failed", a.Role.Name),
			"attempt", attempt,
			"error", genErr.Error(),
		)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", calls, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return "", calls, NewGenerationError(a.Role.Name, attempts, lastErr)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
