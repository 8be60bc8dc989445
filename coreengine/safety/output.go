package safety

import (
	"github.com/meridian-research-org/assistantcore/coreengine/config"
)

// OutputGuardrail screens generated responses before delivery.
//
// Rule set in evaluation order: PII detection, harmful language, biased
// phrasing. PII violations are high severity and block; harmful and biased
// findings are medium and never block on their own. Sanitization runs on
// every response regardless of the verdict.
type OutputGuardrail struct {
	rules []Rule
	pii   *PIIRule
}

// NewOutputGuardrail assembles the output rule set from cfg. Nil override
// fields fall back to the built-in rule data; explicitly empty ones disable
// the corresponding rule. Rules whose data cannot be compiled are dropped
// and logged, never failing construction.
func NewOutputGuardrail(cfg *config.SafetyConfig, logger Logger) *OutputGuardrail {
	g := &OutputGuardrail{rules: make([]Rule, 0, 3)}

	classes := defaultPIIClasses
	if cfg.PIIPatterns != nil {
		classes = piiClassesFromOverrides(cfg.PIIPatterns)
	}
	if pii := NewPIIRule(classes, cfg.MaxPIIMatches); pii != nil {
		g.pii = pii
		g.rules = append(g.rules, pii)
	} else {
		logger.Warning("output_rule_disabled", "validator", string(ValidatorPII))
	}

	harmfulLexicon := cfg.HarmfulLexicon
	if harmfulLexicon == nil {
		harmfulLexicon = defaultHarmfulLexicon
	}
	if harmful := NewLexiconRule(ValidatorHarmfulContent, SeverityMedium,
		"Response may contain harmful content", 0, harmfulLexicon); harmful != nil {
		g.rules = append(g.rules, harmful)
	} else {
		logger.Warning("output_rule_disabled", "validator", string(ValidatorHarmfulContent))
	}

	biasPatterns := cfg.BiasPatterns
	if biasPatterns == nil {
		biasPatterns = defaultBiasPatterns
	}
	if bias := NewPatternRule(ValidatorBias, SeverityMedium,
		"Response may contain biased language", biasPatterns); bias != nil {
		g.rules = append(g.rules, bias)
	} else {
		logger.Warning("output_rule_disabled", "validator", string(ValidatorBias))
	}

	return g
}

// Validate runs every output rule over the response. SanitizedText is
// always the redacted form, even for responses that pass every rule.
func (g *OutputGuardrail) Validate(response string) *ValidationResult {
	var violations []Violation
	for _, rule := range g.rules {
		violations = append(violations, rule.Evaluate(response)...)
	}

	return &ValidationResult{
		Valid:         !hasHighSeverity(violations),
		Violations:    violations,
		SanitizedText: g.Sanitize(response),
	}
}

// Sanitize replaces every PII match in response with RedactionToken.
// Sanitizing already-sanitized text is a no-op.
func (g *OutputGuardrail) Sanitize(response string) string {
	if g.pii == nil {
		return response
	}
	return g.pii.Sanitize(response)
}
