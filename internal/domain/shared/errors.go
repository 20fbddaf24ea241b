// Package shared contains common domain types, errors and events
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
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "practice", "achievement"
	Op      string // Operation that failed, e.g., "NewSession", "Unlock"
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

// Practice domain errors
var (
	ErrSessionNotFound   = NewDomainError("practice", "FindSession", ErrNotFound, "session not found")
	ErrExerciseNotFound  = NewDomainError("practice", "FindExercise", ErrNotFound, "exercise not found")
	ErrSessionExists     = NewDomainError("practice", "AppendSession", ErrAlreadyExists, "session already exists")
	ErrMissingExercise   = NewDomainError("practice", "Validate", ErrEmptyValue, "exercise is required")
	ErrMissingTimestamp  = NewDomainError("practice", "Validate", ErrEmptyValue, "timestamp is required")
	ErrInvalidTempo      = NewDomainError("practice", "Validate", ErrValueOutOfRange, "tempo must be a positive integer")
	ErrInvalidDuration   = NewDomainError("practice", "Validate", ErrValueOutOfRange, "duration must be a positive number of seconds")
	ErrPracticeStoreDown = NewDomainError("practice", "Store", ErrServiceUnavailable, "practice store unavailable")
)

// Achievement domain errors
var (
	ErrRuleNotFound      = NewDomainError("achievement", "FindRule", ErrNotFound, "rule not found")
	ErrInvalidRule       = NewDomainError("achievement", "LoadCatalog", ErrInvalidInput, "invalid rule definition")
	ErrDuplicateRule     = NewDomainError("achievement", "LoadCatalog", ErrAlreadyExists, "duplicate rule id")
	ErrUnknownMetricKind = NewDomainError("achievement", "LoadCatalog", ErrInvalidInput, "unknown metric kind")
	ErrNonPositiveThresh = NewDomainError("achievement", "LoadCatalog", ErrValueOutOfRange, "threshold must be positive")
	ErrUnlockConflict    = NewDomainError("achievement", "Unlock", ErrAlreadyExists, "rule already unlocked")
	ErrMissingRuleID     = NewDomainError("achievement", "Unlock", ErrEmptyValue, "rule id is required")
	ErrMissingUnlockedAt = NewDomainError("achievement", "Unlock", ErrEmptyValue, "unlock time is required")
	ErrUnlockStoreDown   = NewDomainError("achievement", "Store", ErrServiceUnavailable, "unlock store unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried on the next trigger.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrExternalService)
}
