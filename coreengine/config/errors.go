package config

import "fmt"

// ConfigurationError reports an invalid or inconsistent configuration value.
// It is returned by the Validate methods and is fatal at startup: callers
// are expected to refuse to construct components from a config that fails
// validation rather than limp along with partial settings.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a ConfigurationError for the given field.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}
