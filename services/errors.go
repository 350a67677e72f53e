package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a gateway error
type ErrorType string

const (
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeForbidden     ErrorType = "forbidden"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeUpstream      ErrorType = "upstream"
	ErrorTypeStructural    ErrorType = "structural"
	ErrorTypeOrchestration ErrorType = "orchestration"
	ErrorTypeInternal      ErrorType = "internal"
)

// DomainError represents a structured error with a category the
// handlers and fallback logic can branch on
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error

	// StatusCode is the upstream HTTP status for upstream errors
	StatusCode int

	// MissingKey names the absent credential for config errors
	MissingKey string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is; two domain errors match when their types match
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// NewUnauthorizedError reports a missing credential at the gate
func NewUnauthorizedError(message string) *DomainError {
	return NewDomainError(ErrorTypeUnauthorized, message, nil)
}

// NewForbiddenError reports a present but unacceptable credential
func NewForbiddenError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeForbidden, message, err)
}

// NewValidationError reports a malformed request payload. The message
// stays generic; schema details are never surfaced to the caller.
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewConfigError reports an absent provider credential. Never retried;
// retrying cannot help until the process restarts with the key set.
func NewConfigError(missingKey string) *DomainError {
	e := NewDomainError(ErrorTypeConfig, fmt.Sprintf("missing credential %s", missingKey), nil)
	e.MissingKey = missingKey
	return e
}

// NewTimeoutError reports an outbound call cancelled at its deadline
func NewTimeoutError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, err)
}

// NewUpstreamError reports a non-2xx or failed network call to a provider
func NewUpstreamError(statusCode int, message string, err error) *DomainError {
	e := NewDomainError(ErrorTypeUpstream, message, err)
	e.StatusCode = statusCode
	return e
}

// NewStructuralError reports provider output that survived no recovery step
func NewStructuralError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeStructural, message, err)
}

// NewOrchestrationError reports an exhausted fallback sequence,
// carrying the last observed failure as its cause
func NewOrchestrationError(message string, lastCause error) *DomainError {
	return NewDomainError(ErrorTypeOrchestration, message, lastCause)
}

// Error type checking helper functions

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsConfigError checks if an error is a missing-credential error
func IsConfigError(err error) bool {
	return GetErrorType(err) == ErrorTypeConfig
}

// IsTimeoutError checks if an error is a dispatch timeout
func IsTimeoutError(err error) bool {
	return GetErrorType(err) == ErrorTypeTimeout
}

// IsUpstreamError checks if an error is a provider upstream error
func IsUpstreamError(err error) bool {
	return GetErrorType(err) == ErrorTypeUpstream
}

// IsStructuralError checks if an error is a structural recovery failure
func IsStructuralError(err error) bool {
	return GetErrorType(err) == ErrorTypeStructural
}

// IsOrchestrationError checks if an error is an exhausted-fallback error
func IsOrchestrationError(err error) bool {
	return GetErrorType(err) == ErrorTypeOrchestration
}

// IsHardFailure reports whether an error justifies advancing to the
// next fallback candidate. Only timeouts and upstream failures qualify;
// structural errors are surfaced directly and config errors are terminal.
func IsHardFailure(err error) bool {
	t := GetErrorType(err)
	return t == ErrorTypeTimeout || t == ErrorTypeUpstream
}

// GetErrorType returns the ErrorType of a domain error, or empty string
// if the chain contains no domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetUpstreamStatus returns the upstream HTTP status carried by an
// upstream error, or zero
func GetUpstreamStatus(err error) int {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.StatusCode
	}
	return 0
}
