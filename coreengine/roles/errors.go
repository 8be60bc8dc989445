package roles

import (
	"fmt"
)

// GenerationError is raised when a role exhausts its generation retries.
// It wraps the last underlying provider error.
type GenerationError struct {
	Role     RoleName
	Attempts int
	Cause    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for role '%s' after %d attempts: %v", e.Role, e.Attempts, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// NewGenerationError creates a new GenerationError.
func NewGenerationError(role RoleName, attempts int, cause error) *GenerationError {
	return &GenerationError{Role: role, Attempts: attempts, Cause: cause}
}
