package config

import (
	"sync"

	"github.com/meridian-research-org/assistantcore/coreengine/typeutil"
)

// ConversationConfig holds the multi-role conversation loop configuration.
//
// The loop runs a fixed cycle of roles for at most MaxRounds rounds; a turn
// containing TerminationToken ends the conversation early.
type ConversationConfig struct {
	// Loop Limits
	MaxRounds        int    `json:"max_rounds"`
	TerminationToken string `json:"termination_token"`

	// Result Assembly
	MaxCitations int `json:"max_citations"`

	// Generation Retry
	MaxGenerationRetries int `json:"max_generation_retries"`
	RetryBackoffMS       int `json:"retry_backoff_ms"`     // first retry delay
	RetryBackoffMaxMS    int `json:"retry_backoff_max_ms"` // delay cap, doubling in between

	// Timeouts (seconds)
	TurnTimeoutSeconds int `json:"turn_timeout_seconds"` // per-turn deadline, 0 = inherit caller deadline
}

// DefaultConversationConfig returns a ConversationConfig with default values.
func DefaultConversationConfig() *ConversationConfig {
	return &ConversationConfig{
		// Loop Limits
		MaxRounds:        3,
		TerminationToken: "TERMINATE",

		// Result Assembly
		MaxCitations: 10,

		// Generation Retry
		MaxGenerationRetries: 3,
		RetryBackoffMS:       250,
		RetryBackoffMaxMS:    2000,

		// Timeouts (seconds)
		TurnTimeoutSeconds: 120,
	}
}

// ConversationConfigFromMap creates a ConversationConfig from a map.
// Unknown keys are ignored. Numbers may arrive as float64 from JSON.
func ConversationConfigFromMap(config map[string]any) *ConversationConfig {
	c := DefaultConversationConfig()
	if config == nil {
		return c
	}

	c.MaxRounds = typeutil.SafeIntDefault(config["max_rounds"], c.MaxRounds)
	c.TerminationToken = typeutil.SafeStringDefault(config["termination_token"], c.TerminationToken)
	c.MaxCitations = typeutil.SafeIntDefault(config["max_citations"], c.MaxCitations)
	c.MaxGenerationRetries = typeutil.SafeIntDefault(config["max_generation_retries"], c.MaxGenerationRetries)
	c.RetryBackoffMS = typeutil.SafeIntDefault(config["retry_backoff_ms"], c.RetryBackoffMS)
	c.RetryBackoffMaxMS = typeutil.SafeIntDefault(config["retry_backoff_max_ms"], c.RetryBackoffMaxMS)
	c.TurnTimeoutSeconds = typeutil.SafeIntDefault(config["turn_timeout_seconds"], c.TurnTimeoutSeconds)

	return c
}

// ToMap converts the config to a map.
func (c *ConversationConfig) ToMap() map[string]any {
	return map[string]any{
		"max_rounds":             c.MaxRounds,
		"termination_token":      c.TerminationToken,
		"max_citations":          c.MaxCitations,
		"max_generation_retries": c.MaxGenerationRetries,
		"retry_backoff_ms":       c.RetryBackoffMS,
		"retry_backoff_max_ms":   c.RetryBackoffMaxMS,
		"turn_timeout_seconds":   c.TurnTimeoutSeconds,
	}
}

// Validate checks the config for values the conversation loop cannot run with.
func (c *ConversationConfig) Validate() error {
	if c.MaxRounds < 1 {
		return NewConfigurationError("max_rounds", "must be >= 1")
	}
	if c.TerminationToken == "" {
		return NewConfigurationError("termination_token", "must not be empty")
	}
	if c.MaxCitations < 0 {
		return NewConfigurationError("max_citations", "must be >= 0")
	}
	if c.MaxGenerationRetries < 1 {
		return NewConfigurationError("max_generation_retries", "must be >= 1")
	}
	if c.RetryBackoffMS < 0 {
		return NewConfigurationError("retry_backoff_ms", "must be >= 0")
	}
	if c.RetryBackoffMaxMS < c.RetryBackoffMS {
		return NewConfigurationError("retry_backoff_max_ms", "must be >= retry_backoff_ms")
	}
	if c.TurnTimeoutSeconds < 0 {
		return NewConfigurationError("turn_timeout_seconds", "must be >= 0")
	}
	return nil
}

// =============================================================================
// GLOBAL CONFIG (set by the embedder's bootstrap)
// =============================================================================

var (
	globalConversationConfig *ConversationConfig
	conversationConfigMu     sync.RWMutex
)

// GetConversationConfig gets the conversation configuration instance.
// Returns the injected config or defaults.
func GetConversationConfig() *ConversationConfig {
	conversationConfigMu.RLock()
	defer conversationConfigMu.RUnlock()

	if globalConversationConfig == nil {
		return DefaultConversationConfig()
	}
	return globalConversationConfig
}

// SetConversationConfig sets the conversation configuration instance.
func SetConversationConfig(config *ConversationConfig) {
	conversationConfigMu.Lock()
	defer conversationConfigMu.Unlock()

	globalConversationConfig = config
}

// ResetConversationConfig resets the conversation config to nil (useful for testing).
// After reset, GetConversationConfig() returns defaults.
func ResetConversationConfig() {
	conversationConfigMu.Lock()
	defer conversationConfigMu.Unlock()

	globalConversationConfig = nil
}
