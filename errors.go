package sona

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by explicit lookups for unknown ids. Operations
// that merely act on an id (feedback, boosts, protection) return neutral
// values instead.
var ErrNotFound = errors.New("not found")

// ValidationError indicates malformed import data, a missing required field,
// or an invalid path. It is surfaced synchronously to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// BackendError wraps a failure from the vector/graph backend with the
// operation that caused it. The original cause is attached for errors.Is/As.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError wraps err as a BackendError for the given operation.
func NewBackendError(op string, err error) *BackendError {
	return &BackendError{Op: op, Err: err}
}
