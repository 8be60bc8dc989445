// Package config provides safety and conversation configuration - NO backend URLs.
//
// This module contains ONLY configuration relevant to the guarded assistant
// pipeline:
//   - Safety gate toggles and the violation policy
//   - Rule knobs and lexicon/pattern overrides
//   - Conversation loop limits
//
// Infrastructure configuration (model endpoints, API keys, search settings)
// belongs to the embedding application. Environment parsing happens in the
// embedder's bootstrap; nothing here reads os.Getenv.
package config

import (
	"sync"

	"github.com/meridian-research-org/assistantcore/coreengine/typeutil"
)

// Violation policy actions. The action decides what CheckOutput returns for
// an unsafe response: a canned refusal, or the sanitized text.
const (
	ViolationActionRefuse   = "refuse"
	ViolationActionSanitize = "sanitize"
)

// DefaultViolationMessage is the refusal text used when no override is set.
const DefaultViolationMessage = "I apologize, but I cannot provide that response."

// SafetyConfig holds the safety gate configuration.
//
// Lexicon and pattern fields override the built-in rule data when non-nil;
// nil means "use the package defaults". An explicitly empty slice disables
// the corresponding rule (rules fail open individually).
type SafetyConfig struct {
	// Gate Toggles
	Enabled   bool `json:"enabled"`
	LogEvents bool `json:"log_events"`

	// Violation Policy
	OnViolationAction  string `json:"on_violation_action"` // refuse | sanitize
	OnViolationMessage string `json:"on_violation_message"`

	// Audit
	AuditLogPath string `json:"audit_log_path"`

	// Input Rules
	MinQueryLength     int      `json:"min_query_length"`
	MaxQueryLength     int      `json:"max_query_length"`
	ToxicLexicon       []string `json:"toxic_lexicon,omitempty"`
	InjectionPatterns  []string `json:"injection_patterns,omitempty"`
	TopicLexicon       []string `json:"topic_lexicon,omitempty"`
	RelevanceMinLength int      `json:"relevance_min_length"`
	EnforceTopic       bool     `json:"enforce_topic"` // escalate off-topic advisories to medium
	MaxTermsInReason   int      `json:"max_terms_in_reason"`

	// Output Rules
	PIIPatterns    map[string]string `json:"pii_patterns,omitempty"` // class -> pattern
	HarmfulLexicon []string          `json:"harmful_lexicon,omitempty"`
	BiasPatterns   []string          `json:"bias_patterns,omitempty"`
	MaxPIIMatches  int               `json:"max_pii_matches"`
}

// DefaultSafetyConfig returns a SafetyConfig with default values.
// Lexicons and patterns stay nil so the built-in rule data applies.
func DefaultSafetyConfig() *SafetyConfig {
	return &SafetyConfig{
		// Gate Toggles
		Enabled:   true,
		LogEvents: true,

		// Violation Policy
		OnViolationAction:  ViolationActionSanitize,
		OnViolationMessage: DefaultViolationMessage,

		// Audit
		AuditLogPath: "logs/safety_events.jsonl",

		// Input Rules
		MinQueryLength:     5,
		MaxQueryLength:     2000,
		RelevanceMinLength: 20,
		EnforceTopic:       false,
		MaxTermsInReason:   3,

		// Output Rules
		MaxPIIMatches: 5,
	}
}

// SafetyConfigFromMap creates a SafetyConfig from a nested map of the shape
//
//	{enabled, log_events, audit_log_path,
//	 on_violation: {action, message},
//	 input_rules:  {min_query_length, max_query_length, toxic_lexicon,
//	                injection_patterns, topic_lexicon, relevance_min_length,
//	                enforce_topic, max_terms_in_reason},
//	 output_rules: {pii_patterns, harmful_lexicon, bias_patterns,
//	                max_pii_matches}}
//
// Unknown keys are ignored. Numbers may arrive as float64 from JSON.
func SafetyConfigFromMap(config map[string]any) *SafetyConfig {
	c := DefaultSafetyConfig()
	if config == nil {
		return c
	}

	c.Enabled = typeutil.SafeBoolDefault(config["enabled"], c.Enabled)
	c.LogEvents = typeutil.SafeBoolDefault(config["log_events"], c.LogEvents)
	c.AuditLogPath = typeutil.SafeStringDefault(config["audit_log_path"], c.AuditLogPath)

	if ov, ok := typeutil.SafeMapStringAny(config["on_violation"]); ok {
		c.OnViolationAction = typeutil.SafeStringDefault(ov["action"], c.OnViolationAction)
		c.OnViolationMessage = typeutil.SafeStringDefault(ov["message"], c.OnViolationMessage)
	}

	if in, ok := typeutil.SafeMapStringAny(config["input_rules"]); ok {
		c.MinQueryLength = typeutil.SafeIntDefault(in["min_query_length"], c.MinQueryLength)
		c.MaxQueryLength = typeutil.SafeIntDefault(in["max_query_length"], c.MaxQueryLength)
		c.RelevanceMinLength = typeutil.SafeIntDefault(in["relevance_min_length"], c.RelevanceMinLength)
		c.EnforceTopic = typeutil.SafeBoolDefault(in["enforce_topic"], c.EnforceTopic)
		c.MaxTermsInReason = typeutil.SafeIntDefault(in["max_terms_in_reason"], c.MaxTermsInReason)
		if v, ok := typeutil.SafeStringSlice(in["toxic_lexicon"]); ok {
			c.ToxicLexicon = v
		}
		if v, ok := typeutil.SafeStringSlice(in["injection_patterns"]); ok {
			c.InjectionPatterns = v
		}
		if v, ok := typeutil.SafeStringSlice(in["topic_lexicon"]); ok {
			c.TopicLexicon = v
		}
	}

	if out, ok := typeutil.SafeMapStringAny(config["output_rules"]); ok {
		c.MaxPIIMatches = typeutil.SafeIntDefault(out["max_pii_matches"], c.MaxPIIMatches)
		if v, ok := typeutil.SafeStringSlice(out["harmful_lexicon"]); ok {
			c.HarmfulLexicon = v
		}
		if v, ok := typeutil.SafeStringSlice(out["bias_patterns"]); ok {
			c.BiasPatterns = v
		}
		if pii, ok := typeutil.SafeStringMap(out["pii_patterns"]); ok {
			c.PIIPatterns = pii
		}
	}

	return c
}

// ToMap converts the config to a map.
func (c *SafetyConfig) ToMap() map[string]any {
	result := map[string]any{
		"enabled":        c.Enabled,
		"log_events":     c.LogEvents,
		"audit_log_path": c.AuditLogPath,
		"on_violation": map[string]any{
			"action":  c.OnViolationAction,
			"message": c.OnViolationMessage,
		},
		"input_rules": map[string]any{
			"min_query_length":     c.MinQueryLength,
			"max_query_length":     c.MaxQueryLength,
			"relevance_min_length": c.RelevanceMinLength,
			"enforce_topic":        c.EnforceTopic,
			"max_terms_in_reason":  c.MaxTermsInReason,
		},
		"output_rules": map[string]any{
			"max_pii_matches": c.MaxPIIMatches,
		},
	}
	in := result["input_rules"].(map[string]any)
	if c.ToxicLexicon != nil {
		in["toxic_lexicon"] = c.ToxicLexicon
	}
	if c.InjectionPatterns != nil {
		in["injection_patterns"] = c.InjectionPatterns
	}
	if c.TopicLexicon != nil {
		in["topic_lexicon"] = c.TopicLexicon
	}
	out := result["output_rules"].(map[string]any)
	if c.HarmfulLexicon != nil {
		out["harmful_lexicon"] = c.HarmfulLexicon
	}
	if c.BiasPatterns != nil {
		out["bias_patterns"] = c.BiasPatterns
	}
	if c.PIIPatterns != nil {
		out["pii_patterns"] = c.PIIPatterns
	}
	return result
}

// Validate checks the config for values the safety gates cannot run with.
func (c *SafetyConfig) Validate() error {
	if c.OnViolationAction != ViolationActionRefuse && c.OnViolationAction != ViolationActionSanitize {
		return NewConfigurationError("on_violation.action",
			"must be \"refuse\" or \"sanitize\", got \""+c.OnViolationAction+"\"")
	}
	if c.MinQueryLength < 0 {
		return NewConfigurationError("input_rules.min_query_length", "must be >= 0")
	}
	if c.MaxQueryLength <= c.MinQueryLength {
		return NewConfigurationError("input_rules.max_query_length", "must be greater than min_query_length")
	}
	if c.RelevanceMinLength < 0 {
		return NewConfigurationError("input_rules.relevance_min_length", "must be >= 0")
	}
	if c.MaxTermsInReason < 1 {
		return NewConfigurationError("input_rules.max_terms_in_reason", "must be >= 1")
	}
	if c.MaxPIIMatches < 1 {
		return NewConfigurationError("output_rules.max_pii_matches", "must be >= 1")
	}
	if c.LogEvents && c.AuditLogPath == "" {
		return NewConfigurationError("audit_log_path", "required when log_events is enabled")
	}
	return nil
}

// =============================================================================
// GLOBAL CONFIG (set by the embedder's bootstrap)
// =============================================================================

var (
	globalSafetyConfig *SafetyConfig
	safetyConfigMu     sync.RWMutex
)

// GetSafetyConfig gets the safety configuration instance.
// Returns the injected config or defaults.
func GetSafetyConfig() *SafetyConfig {
	safetyConfigMu.RLock()
	defer safetyConfigMu.RUnlock()

	if globalSafetyConfig == nil {
		return DefaultSafetyConfig()
	}
	return globalSafetyConfig
}

// SetSafetyConfig sets the safety configuration instance.
func SetSafetyConfig(config *SafetyConfig) {
	safetyConfigMu.Lock()
	defer safetyConfigMu.Unlock()

	globalSafetyConfig = config
}

// ResetSafetyConfig resets the safety config to nil (useful for testing).
// After reset, GetSafetyConfig() returns defaults.
func ResetSafetyConfig() {
	safetyConfigMu.Lock()
	defer safetyConfigMu.Unlock()

	globalSafetyConfig = nil
}
