// Package shared contains common domain types, errors, and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// Lifecycle errors
	ErrPreconditionNotMet = errors.New("precondition not met")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrProofRequired      = errors.New("proof of work required")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Storage errors
	ErrPersistenceFailure = errors.New("persistence failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "project", "badge", "workflow"
	Op      string // Operation that failed, e.g., "Submit", "SetDefault"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Precondition builds a PreconditionNotMet error carrying the unmet condition
// as an actionable message (e.g. "finish all tasks before submitting").
func Precondition(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrPreconditionNotMet, message)
}

// Persistence wraps a store error as a PersistenceFailure.
func Persistence(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrPersistenceFailure, "store rejected the write", err)
}

// UserMessage returns the message suitable for surfacing to the user.
// Non-domain errors produce a generic retry hint.
func UserMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "something went wrong, please try again"
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPreconditionNotMet checks if a guarded operation was attempted without its guard.
func IsPreconditionNotMet(err error) bool {
	return errors.Is(err, ErrPreconditionNotMet)
}

// IsProofRequired checks if a step completion is waiting for a proof artifact.
func IsProofRequired(err error) bool {
	return errors.Is(err, ErrProofRequired)
}

// IsPersistenceFailure checks if the underlying store rejected a write.
func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsRetryable checks if the user may retry the operation unchanged.
// Nothing is retried automatically.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}
