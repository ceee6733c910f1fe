package agent

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an agent (or thread) does not exist for the
// caller's tenant. A tenant mismatch is deliberately indistinguishable from
// true absence so callers cannot probe for agents across tenants.
var ErrNotFound = errors.New("agent: not found")

// ValidationError reports a contract draft or patch that violates the
// contract constraints. Nothing is persisted when validation fails.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent: invalid %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CompletionUnavailableError indicates the external completion service
// failed during a chat turn. The inbound user message has already been
// persisted; no assistant message or memory write happened for the turn.
type CompletionUnavailableError struct {
	ThreadID string
	Err      error
}

func (e *CompletionUnavailableError) Error() string {
	return fmt.Sprintf("agent: completion unavailable for thread %s: %v", e.ThreadID, e.Err)
}

func (e *CompletionUnavailableError) Unwrap() error { return e.Err }
