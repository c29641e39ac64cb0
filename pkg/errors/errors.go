package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Generic error types

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates insufficient permissions
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Session and quota errors

var (
	// ErrAgentNotFound indicates the requested agent persona does not exist
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentInactive indicates the requested agent persona is disabled
	ErrAgentInactive = errors.New("agent inactive")

	// ErrQuotaExceeded indicates the caller has used up today's conversation time
	ErrQuotaExceeded = errors.New("daily usage quota exceeded")

	// ErrProviderUnavailable indicates the upstream voice provider failed or timed out
	ErrProviderUnavailable = errors.New("voice provider unavailable")

	// ErrSessionNotFound indicates an unknown or already-ended session
	ErrSessionNotFound = errors.New("session not found")

	// ErrAccessDenied indicates the caller does not own the session
	ErrAccessDenied = errors.New("access denied")

	// ErrPersistenceDegraded indicates a durable write failed while the cache stays authoritative
	ErrPersistenceDegraded = errors.New("persistence degraded")

	// ErrUnauthenticated indicates the caller identity could not be established
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRateLimitExceeded indicates the caller is starting sessions too quickly
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidTransition indicates a session state change that the state machine forbids
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorKind is the caller-facing classification of an error chain.
// Message is generic and safe to expose; it never contains the wrapped detail.
type ErrorKind struct {
	Code       string
	Status     int
	Message    string
	ClientSide bool
}

var kinds = []struct {
	target error
	kind   ErrorKind
}{
	{ErrAgentNotFound, ErrorKind{"AGENT_NOT_FOUND", http.StatusNotFound, "Agent not found", true}},
	{ErrAgentInactive, ErrorKind{"AGENT_INACTIVE", http.StatusBadRequest, "Agent is not available", true}},
	{ErrQuotaExceeded, ErrorKind{"QUOTA_EXCEEDED", http.StatusTooManyRequests, "Daily usage limit reached", true}},
	{ErrRateLimitExceeded, ErrorKind{"RATE_LIMITED", http.StatusTooManyRequests, "Too many requests", true}},
	{ErrSessionNotFound, ErrorKind{"SESSION_NOT_FOUND", http.StatusNotFound, "Session not found", true}},
	{ErrAccessDenied, ErrorKind{"ACCESS_DENIED", http.StatusForbidden, "Access denied", true}},
	{ErrUnauthenticated, ErrorKind{"UNAUTHENTICATED", http.StatusUnauthorized, "Authentication required", true}},
	{ErrNotFound, ErrorKind{"NOT_FOUND", http.StatusNotFound, "Not found", true}},
	{ErrInvalidInput, ErrorKind{"INVALID_INPUT", http.StatusBadRequest, "Invalid request", true}},
	{ErrInvalidTransition, ErrorKind{"INVALID_TRANSITION", http.StatusConflict, "Session state does not allow this operation", true}},
	{ErrProviderUnavailable, ErrorKind{"PROVIDER_UNAVAILABLE", http.StatusBadGateway, "Voice provider unavailable, please retry", false}},
	{ErrPersistenceDegraded, ErrorKind{"PERSISTENCE_DEGRADED", http.StatusServiceUnavailable, "Service temporarily unavailable, please retry", false}},
	{ErrUnavailable, ErrorKind{"SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "Service temporarily unavailable, please retry", false}},
}

var internalKind = ErrorKind{"INTERNAL", http.StatusInternalServerError, "Internal error", false}

// Kind classifies err by the first known sentinel in its chain.
// A DomainError code takes precedence over the sentinel's code.
func Kind(err error) ErrorKind {
	if err == nil {
		return ErrorKind{}
	}

	kind := internalKind
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			kind = k.kind
			break
		}
	}

	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		kind.Code = de.Code
	}

	return kind
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets validation errors classify as invalid input
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Join wraps two errors so that errors.Is matches both
func Join(errs ...error) error {
	return errors.Join(errs...)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
