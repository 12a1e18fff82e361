package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across repositories and services.
var (
	// ErrNotFound signals that a record is absent or not owned by the
	// requesting actor.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a uniqueness violation (duplicate email,
	// duplicate referral code).
	ErrConflict = errors.New("conflict")

	// ErrInvalidState signals a state-machine transition that is not
	// allowed from the record's current status.
	ErrInvalidState = errors.New("invalid state")
)

// ValidationError reports malformed client input. It is never retried.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidation builds a ValidationError with a single message.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NewFieldValidation builds a ValidationError carrying per-field messages.
func NewFieldValidation(message string, fields map[string]string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

// AsValidation unwraps a ValidationError if err carries one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
