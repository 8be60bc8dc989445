// Package safety provides the input and output guardrails, the policy
// manager that coordinates them, and the audit trail of safety events.
//
// Rules are data: each gate evaluates an ordered rule set compiled from
// configuration (or the built-in defaults) and unions the violations. A
// single high-severity violation blocks; low and medium violations are
// advisory. Rules never perform network I/O.
package safety

import (
	"fmt"
	"strings"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity grades a violation. Only high-severity violations block content;
// low and medium are recorded and surfaced as advisories.
type Severity string

const (
	// SeverityLow marks advisory findings such as short queries or
	// off-topic content.
	SeverityLow Severity = "low"
	// SeverityMedium marks findings that warrant review but do not block,
	// such as over-long queries or harmful terms in generated output.
	SeverityMedium Severity = "medium"
	// SeverityHigh marks findings that block the content outright.
	SeverityHigh Severity = "high"
)

// SeverityFromString parses a severity string.
func SeverityFromString(value string) (Severity, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	default:
		return "", fmt.Errorf("invalid severity '%s'. Must be one of: low, medium, high", value)
	}
}

// Rank returns the ordering weight of the severity. Higher outranks lower;
// unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether s is strictly more severe than other.
func (s Severity) Outranks(other Severity) bool {
	return s.Rank() > other.Rank()
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Outranks(a) {
		return b
	}
	return a
}

// =============================================================================
// DIRECTION
// =============================================================================

// Direction identifies which gate performed a check.
type Direction string

const (
	// DirectionInput marks checks of user queries before processing.
	DirectionInput Direction = "input"
	// DirectionOutput marks checks of generated responses before delivery.
	DirectionOutput Direction = "output"
)

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator names the rule category that produced a violation.
type Validator string

const (
	// ValidatorLength reports queries outside the configured length bounds.
	ValidatorLength Validator = "length"
	// ValidatorToxicity reports toxic or harmful terms in queries.
	ValidatorToxicity Validator = "toxicity"
	// ValidatorPromptInjection reports instruction-override attempts.
	ValidatorPromptInjection Validator = "prompt_injection"
	// ValidatorRelevance reports queries outside the configured topic domain.
	ValidatorRelevance Validator = "relevance"
	// ValidatorPII reports personally identifiable information in output.
	ValidatorPII Validator = "pii"
	// ValidatorHarmfulContent reports harmful terms in generated output.
	ValidatorHarmfulContent Validator = "harmful_content"
	// ValidatorBias reports stereotyping or biased phrasing in output.
	ValidatorBias Validator = "bias"
)
