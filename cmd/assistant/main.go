// Research Assistant Demo
//
// One-shot driver for the conversation pipeline: wires the message bus, the
// search tools, the safety manager, and the coordinator, runs a single query
// through the agent roster, and renders the result. The LLM backend is a
// scripted stand-in so the binary runs without an inference endpoint; the
// search tools are live and degrade gracefully when offline.
//
// Usage:
//
//	go run ./cmd/assistant
//	go run ./cmd/assistant -query "How should dashboards present dense data?"
//	go run ./cmd/assistant -rounds 2 -audit audit/events.jsonl -policy refuse
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/meridian-research-org/assistantcore/commbus"
	"github.com/meridian-research-org/assistantcore/coreengine/config"
	"github.com/meridian-research-org/assistantcore/coreengine/conversation"
	"github.com/meridian-research-org/assistantcore/coreengine/observability"
	"github.com/meridian-research-org/assistantcore/coreengine/roles"
	"github.com/meridian-research-org/assistantcore/coreengine/safety"
	"github.com/meridian-research-org/assistantcore/coreengine/tools"
)

const (
	defaultQuery   = "What are the best practices for designing user-friendly mobile interfaces?"
	separatorWidth = 70
)

// stdLogger implements the pipeline Logger interfaces using standard library log.
type stdLogger struct{}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Warning(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

// =============================================================================
// SCRIPTED PROVIDER
// =============================================================================

// evidenceURLPattern lifts source URLs out of the evidence block so the
// scripted writer can cite whatever the live searches actually returned.
var evidenceURLPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// scriptedProvider is a canned LLM backend keyed on the role directive that
// opens every prompt. It stands in for a real inference endpoint so the
// binary can demonstrate the full pipeline offline.
type scriptedProvider struct{}

func (p *scriptedProvider) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch {
	case opensWith(prompt, roles.RolePlanner):
		return "Search topics: (1) established usability heuristics, (2) mobile interaction patterns, (3) evaluation methods for small screens.", nil
	case opensWith(prompt, roles.RoleResearcher):
		return "Both searches completed. The evidence above covers heuristic checklists and mobile-specific interaction studies.", nil
	case opensWith(prompt, roles.RoleWriter):
		return writerDraft(prompt), nil
	case opensWith(prompt, roles.RoleCritic):
		return "The response is concise and grounded in the gathered sources. TERMINATE", nil
	}
	return "Continuing the research discussion.", nil
}

func opensWith(prompt string, name roles.RoleName) bool {
	role, err := roles.Get(name)
	if err != nil {
		return false
	}
	return strings.HasPrefix(prompt, role.Directive)
}

// writerDraft composes the candidate response, citing up to three URLs found
// in the prompt's evidence block. Offline runs produce prose with no sources.
func writerDraft(prompt string) string {
	draft := "Established usability heuristics carry over to mobile interfaces with adjustments for touch targets, " +
		"screen density, and interruption-heavy contexts. Prioritize visibility of system status, " +
		"one-handed reachability, and forgiving input."

	seen := make(map[string]bool)
	var sources []string
	for _, url := range evidenceURLPattern.FindAllString(prompt, -1) {
		url = strings.TrimRight(url, ".,;:!?)")
		if seen[url] {
			continue
		}
		seen[url] = true
		sources = append(sources, url)
		if len(sources) == 3 {
			break
		}
	}
	if len(sources) == 0 {
		return draft
	}

	var b strings.Builder
	b.WriteString(draft)
	b.WriteString("\n\nSources:\n")
	for _, url := range sources {
		fmt.Fprintf(&b, "- %s\n", url)
	}
	return b.String()
}

// =============================================================================
// MAIN
// =============================================================================

func main() {
	query := flag.String("query", defaultQuery, "research query to run")
	rounds := flag.Int("rounds", 0, "max conversation rounds (0 = config default)")
	audit := flag.String("audit", "", "append safety audit events to this JSONL file")
	policy := flag.String("policy", "", "violation policy override: refuse or sanitize")
	otlp := flag.String("otlp", "", "OTLP gRPC endpoint for trace export (empty = tracing off)")
	verbose := flag.Bool("verbose", false, "log every bus message")
	flag.Parse()

	if err := run(*query, *rounds, *audit, *policy, *otlp, *verbose); err != nil {
		log.Fatalf("assistant failed: %v", err)
	}
}

func run(query string, rounds int, auditPath, policy, otlpEndpoint string, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := &stdLogger{}
	logger.Info("assistant_starting", "query_length", len(query))

	if otlpEndpoint != "" {
		shutdown, err := observability.InitTracer("research-assistant", otlpEndpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warning("tracer_shutdown_failed", "error", err)
			}
		}()
	}

	bus := commbus.NewInMemoryCommBus(10 * time.Second)
	if verbose {
		bus.AddMiddleware(commbus.NewLoggingMiddleware("debug"))
	}

	// Safety pipeline. The JSONL sink persists audit events across runs;
	// without -audit the trail stays in memory.
	safetyCfg := config.DefaultSafetyConfig()
	if policy != "" {
		safetyCfg.OnViolationAction = policy
	}
	var sink safety.AuditSink
	if auditPath != "" {
		jsonl, err := safety.NewJSONLSink(auditPath)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer jsonl.Close()
		sink = jsonl
	} else {
		sink = safety.NewMemorySink()
	}
	manager, err := safety.NewSafetyManager(safetyCfg, sink, logger)
	if err != nil {
		return err
	}
	manager.SetEventPublisher(bus)

	// Live search tools.
	executor := tools.NewToolExecutor(logger)
	executor.SetEventPublisher(bus)
	web := tools.NewWebSearchTool(logger)
	if err := executor.Register(web.Definition()); err != nil {
		return err
	}
	paper := tools.NewPaperSearchTool(os.Getenv("SEMANTIC_SCHOLAR_API_KEY"), logger)
	if err := executor.Register(paper.Definition()); err != nil {
		return err
	}

	convCfg := config.DefaultConversationConfig()
	if rounds > 0 {
		convCfg.MaxRounds = rounds
	}

	coordinator, err := conversation.New(manager, &scriptedProvider{}, executor, convCfg, logger, bus)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			return fmt.Errorf("configuration: %w", err)
		}
		return err
	}

	if err := registerBusHandlers(bus, manager, executor); err != nil {
		return err
	}
	unsubscribe := subscribeProgress(bus)
	defer unsubscribe()

	printToolCatalog(ctx, bus)
	fmt.Printf("\nQuery: %s\n\n", query)

	result, err := coordinator.ProcessQuery(ctx, query)
	if result != nil {
		printResult(result)
	}
	if err != nil {
		return err
	}
	printSafetyStats(ctx, bus)
	return nil
}

// =============================================================================
// BUS WIRING
// =============================================================================

// registerBusHandlers serves the query and command messages other components
// address to the pipeline.
func registerBusHandlers(bus *commbus.InMemoryCommBus, manager *safety.SafetyManager, executor *tools.ToolExecutor) error {
	err := bus.RegisterHandler("GetSafetyStats", func(ctx context.Context, msg commbus.Message) (any, error) {
		stats := manager.Stats()
		return &commbus.SafetyStatsResponse{
			TotalEvents:   stats.TotalEvents,
			InputChecks:   stats.InputChecks,
			OutputChecks:  stats.OutputChecks,
			Violations:    stats.Violations,
			ViolationRate: stats.ViolationRate,
		}, nil
	})
	if err != nil {
		return err
	}

	err = bus.RegisterHandler("GetToolCatalog", func(ctx context.Context, msg commbus.Message) (any, error) {
		names := executor.List()
		if req, ok := msg.(*commbus.GetToolCatalog); ok && len(req.Tools) > 0 {
			names = req.Tools
		}
		catalog := make([]map[string]any, 0, len(names))
		for _, name := range names {
			def := executor.GetDefinition(name)
			if def == nil {
				continue
			}
			catalog = append(catalog, map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"category":    def.Category,
				"risk_level":  def.RiskLevel,
			})
		}
		return &commbus.ToolCatalogResponse{Tools: catalog}, nil
	})
	if err != nil {
		return err
	}

	return bus.RegisterHandler("ClearSafetyEvents", func(ctx context.Context, msg commbus.Message) (any, error) {
		manager.ClearEvents()
		return nil, nil
	})
}

// subscribeProgress prints conversation progress as lifecycle events arrive.
// Returns a function that removes every subscription.
func subscribeProgress(bus *commbus.InMemoryCommBus) func() {
	unsubs := []func(){
		bus.Subscribe("TurnStarted", func(ctx context.Context, msg commbus.Message) (any, error) {
			if e, ok := msg.(*commbus.TurnStarted); ok {
				fmt.Printf("  [round %d] %s is working...\n", e.Round, e.Role)
			}
			return nil, nil
		}),
		bus.Subscribe("TurnCompleted", func(ctx context.Context, msg commbus.Message) (any, error) {
			if e, ok := msg.(*commbus.TurnCompleted); ok {
				fmt.Printf("  [round %d] %s replied (%d chars, %d tool calls, %dms)\n",
					e.Round, e.Role, e.ContentLength, e.ToolCalls, e.DurationMS)
			}
			return nil, nil
		}),
		bus.Subscribe("ToolCompleted", func(ctx context.Context, msg commbus.Message) (any, error) {
			if e, ok := msg.(*commbus.ToolCompleted); ok {
				fmt.Printf("      tool %s: %s (%dms)\n", e.Tool, e.Status, e.DurationMS)
			}
			return nil, nil
		}),
		bus.Subscribe("SafetyViolationRaised", func(ctx context.Context, msg commbus.Message) (any, error) {
			if e, ok := msg.(*commbus.SafetyViolationRaised); ok {
				fmt.Printf("  ! safety %s check by %s: severity=%s blocked=%t\n",
					e.Direction, e.Validator, e.Severity, e.Blocked)
			}
			return nil, nil
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

func printToolCatalog(ctx context.Context, bus *commbus.InMemoryCommBus) {
	resp, err := bus.QuerySync(ctx, &commbus.GetToolCatalog{})
	if err != nil {
		return
	}
	catalog, ok := resp.(*commbus.ToolCatalogResponse)
	if !ok {
		return
	}
	names := make([]string, 0, len(catalog.Tools))
	for _, tool := range catalog.Tools {
		if name, ok := tool["name"].(string); ok {
			names = append(names, name)
		}
	}
	fmt.Printf("Registered tools: %s\n", strings.Join(names, ", "))
}

func printResult(result *conversation.Result) {
	line := strings.Repeat("=", separatorWidth)
	thin := strings.Repeat("-", separatorWidth)

	if result.Metadata.Blocked {
		alert := strings.Repeat("!", separatorWidth)
		fmt.Printf("\n%s\nSAFETY ALERT: Query was blocked\n%s\n\n%s\n", alert, alert, result.Response)
		for _, violation := range result.Metadata.SafetyViolations {
			fmt.Printf("  - %v: %v\n", violation["validator"], violation["reason"])
		}
		return
	}

	fmt.Printf("\n%s\nRESPONSE\n%s\n%s\n", line, line, result.Response)
	if note := result.Metadata.AdvisoryNote; note != "" {
		fmt.Printf("\n%s\n", note)
	}

	fmt.Printf("\n%s\nAGENT TRACES\n%s\n", thin, thin)
	for _, msg := range result.ConversationHistory {
		if msg.Role == roles.RoleUser {
			continue
		}
		fmt.Printf("[%s]: %s\n", msg.Role, preview(msg.Content, 200))
	}

	if len(result.Citations) > 0 {
		fmt.Printf("\n%s\nCITATIONS & SOURCES\n%s\n", thin, thin)
		for i, url := range result.Citations {
			fmt.Printf("[%d] %s\n", i+1, url)
		}
	}

	status := "PASSED"
	if !result.Metadata.SafetyCheckPassed {
		status = "FLAGGED"
	}
	fmt.Printf("\n%s\nMETADATA\n%s\n", thin, thin)
	fmt.Printf("  Messages: %d\n", result.Metadata.NumMessages)
	fmt.Printf("  Sources: %d\n", result.Metadata.NumSources)
	fmt.Printf("  Safety Check: %s\n", status)
	fmt.Printf("  Termination: %s\n", result.Metadata.TerminationReason)
	fmt.Printf("  Duration: %dms\n", result.Metadata.DurationMS)
	fmt.Println(line)
}

// preview renders turn content as a single bounded line.
func preview(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

func printSafetyStats(ctx context.Context, bus *commbus.InMemoryCommBus) {
	resp, err := bus.QuerySync(ctx, &commbus.GetSafetyStats{})
	if err != nil {
		return
	}
	stats, ok := resp.(*commbus.SafetyStatsResponse)
	if !ok {
		return
	}
	thin := strings.Repeat("-", separatorWidth)
	fmt.Printf("\n%s\nSAFETY AUDIT\n%s\n", thin, thin)
	fmt.Printf("  Checks: %d input, %d output\n", stats.InputChecks, stats.OutputChecks)
	fmt.Printf("  Violations: %d (rate %.2f)\n", stats.Violations, stats.ViolationRate)
}
