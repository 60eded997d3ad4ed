package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatLLM        ErrorCategory = "llm"        // Language-model collaborator failure
	ErrCatVision     ErrorCategory = "vision"     // Perception collaborator failure
	ErrCatAction     ErrorCategory = "action"     // Actuation failure
	ErrCatStore      ErrorCategory = "store"      // Persistence failure
	ErrCatSafety     ErrorCategory = "safety"     // Blocked by the safety gate
	ErrCatState      ErrorCategory = "state"      // State corruption/conflict
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrLLM creates a language-model collaborator error.
func ErrLLM(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatLLM,
		Code:      "LLM_FAILED",
		Message:   message,
		Retryable: true,
	}
}

// ErrVision creates a perception collaborator error.
func ErrVision(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatVision,
		Code:      "VISION_FAILED",
		Message:   message,
		Retryable: true,
	}
}

// ErrAction creates an actuation error.
func ErrAction(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatAction,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrStore creates a persistence error.
func ErrStore(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatStore,
		Code:      "STORE_FAILED",
		Message:   message,
		Retryable: true,
	}
}

// ErrSafetyBlocked creates an error for an action refused by the safety gate.
// Fatal for the action, never for the run.
func ErrSafetyBlocked(reason string) *DomainError {
	return &DomainError{
		Category:  ErrCatSafety,
		Code:      "SAFETY_BLOCKED",
		Message:   reason,
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeGoalNotFound     = "GOAL_NOT_FOUND"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeOverrideNotFound = "OVERRIDE_NOT_FOUND"
	CodeOverrideExpired  = "OVERRIDE_EXPIRED"
	CodeOverrideRevoked  = "OVERRIDE_REVOKED"
	CodeInvalidState     = "INVALID_STATE"
	CodeStateCorrupted   = "STATE_CORRUPTED"
	CodeParseFailed      = "PARSE_FAILED"
	CodeNoStore          = "NO_STORE"
)
