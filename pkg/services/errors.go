// Package services implements the session, player, and chat operations on
// top of the stores. Services own transaction boundaries; handlers translate
// the typed errors returned here into HTTP responses.
package services

import (
	"errors"
	"fmt"
)

// Sentinel errors the API layer maps to HTTP status codes.
var (
	// ErrNotFound indicates the requested session, player, or resource
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the operation is not allowed in the
	// session's current status or phase.
	ErrInvalidState = errors.New("invalid state")

	// ErrPreconditionFailed indicates a coin, roster, or range check failed.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrForbidden indicates the caller lacks the required privilege.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated indicates the request carries no usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRateLimited indicates an upstream throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient indicates a database or HTTP timeout; callers may retry.
	ErrTransient = errors.New("transient failure")
)

// ValidationError describes a request field that failed validation. It maps
// to HTTP 400 with the message surfaced to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a field-level validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// notFoundf wraps ErrNotFound with a formatted message.
func notFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// invalidStatef wraps ErrInvalidState with a formatted message.
func invalidStatef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidState)...)
}

// preconditionf wraps ErrPreconditionFailed with a formatted message.
func preconditionf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPreconditionFailed)...)
}
