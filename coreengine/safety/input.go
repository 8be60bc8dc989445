package safety

import (
	"github.com/meridian-research-org/assistantcore/coreengine/config"
)

// InputGuardrail screens user queries before any processing happens.
//
// Rule set in evaluation order: length bounds, toxic language, prompt
// injection, topic relevance. Every rule runs on every query and the
// violations are unioned; a high-severity violation blocks the query.
type InputGuardrail struct {
	rules []Rule
}

// NewInputGuardrail assembles the input rule set from cfg. Nil lexicons and
// pattern lists fall back to the built-in rule data; explicitly empty ones
// disable the corresponding rule. Rules whose data cannot be compiled are
// dropped and logged, never failing construction.
func NewInputGuardrail(cfg *config.SafetyConfig, logger Logger) *InputGuardrail {
	rules := make([]Rule, 0, 4)

	rules = append(rules, &LengthRule{Min: cfg.MinQueryLength, Max: cfg.MaxQueryLength})

	toxicLexicon := cfg.ToxicLexicon
	if toxicLexicon == nil {
		toxicLexicon = defaultToxicLexicon
	}
	if toxicity := NewLexiconRule(ValidatorToxicity, SeverityHigh,
		"Query may contain harmful content", cfg.MaxTermsInReason, toxicLexicon); toxicity != nil {
		rules = append(rules, toxicity)
	} else {
		logger.Warning("input_rule_disabled", "validator", string(ValidatorToxicity))
	}

	injectionPatterns := cfg.InjectionPatterns
	if injectionPatterns == nil {
		injectionPatterns = defaultInjectionPatterns
	}
	if injection := NewPatternRule(ValidatorPromptInjection, SeverityHigh,
		"Potential prompt injection detected", injectionPatterns); injection != nil {
		rules = append(rules, injection)
	} else {
		logger.Warning("input_rule_disabled", "validator", string(ValidatorPromptInjection))
	}

	topicLexicon := cfg.TopicLexicon
	if topicLexicon == nil {
		topicLexicon = defaultTopicLexicon
	}
	relevanceSeverity := SeverityLow
	if cfg.EnforceTopic {
		relevanceSeverity = SeverityMedium
	}
	if relevance := NewRelevanceRule(topicLexicon, cfg.RelevanceMinLength, relevanceSeverity); relevance != nil {
		rules = append(rules, relevance)
	} else {
		logger.Warning("input_rule_disabled", "validator", string(ValidatorRelevance))
	}

	return &InputGuardrail{rules: rules}
}

// Validate runs every input rule over the query. The query text is returned
// as SanitizedText when it passes; a blocked query yields empty text.
func (g *InputGuardrail) Validate(query string) *ValidationResult {
	var violations []Violation
	for _, rule := range g.rules {
		violations = append(violations, rule.Evaluate(query)...)
	}

	valid := !hasHighSeverity(violations)
	sanitized := ""
	if valid {
		sanitized = query
	}
	return &ValidationResult{
		Valid:         valid,
		Violations:    violations,
		SanitizedText: sanitized,
	}
}
