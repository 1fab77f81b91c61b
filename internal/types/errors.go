package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for autopen framework errors.
type ErrorCode string

// Adapter error codes
const (
	ADAPTER_TIMEOUT     ErrorCode = "ADAPTER_TIMEOUT"
	ADAPTER_CRASH       ErrorCode = "ADAPTER_CRASH"
	ADAPTER_EXEC_FAILED ErrorCode = "ADAPTER_EXEC_FAILED"
	ADAPTER_CANCELLED   ErrorCode = "ADAPTER_CANCELLED"
)

// Authorization and planning error codes
const (
	SCOPE_VIOLATION     ErrorCode = "SCOPE_VIOLATION"
	CYCLIC_DEPENDENCY   ErrorCode = "CYCLIC_DEPENDENCY"
	PREREQUISITE_FAILED ErrorCode = "PREREQUISITE_FAILED"
)

// Scoring error codes
const (
	ORACLE_UNAVAILABLE ErrorCode = "ORACLE_UNAVAILABLE"
	ORACLE_BAD_OUTPUT  ErrorCode = "ORACLE_BAD_OUTPUT"
)

// Phase orchestration error codes
const (
	PHASE_UNKNOWN             ErrorCode = "PHASE_UNKNOWN"
	PHASE_PRECONDITION_FAILED ErrorCode = "PHASE_PRECONDITION_FAILED"
	PHASE_INVALID_TRANSITION  ErrorCode = "PHASE_INVALID_TRANSITION"
	PHASE_NO_ADAPTERS         ErrorCode = "PHASE_NO_ADAPTERS"
)

// Finding store error codes
const (
	FINDING_NOT_FOUND      ErrorCode = "FINDING_NOT_FOUND"
	FINDING_INVALID        ErrorCode = "FINDING_INVALID"
	FINDING_INVALID_STATUS ErrorCode = "FINDING_INVALID_STATUS"
)

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Engagement error codes
const (
	ENGAGEMENT_INCOMPLETE   ErrorCode = "ENGAGEMENT_INCOMPLETE"
	ENGAGEMENT_UNAUTHORIZED ErrorCode = "ENGAGEMENT_UNAUTHORIZED"
)

// Persistence error codes
const (
	DB_OPEN_FAILED      ErrorCode = "DB_OPEN_FAILED"
	DB_MIGRATION_FAILED ErrorCode = "DB_MIGRATION_FAILED"
	DB_QUERY_FAILED     ErrorCode = "DB_QUERY_FAILED"
	SESSION_NOT_FOUND   ErrorCode = "SESSION_NOT_FOUND"
)

// AutopenError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints so the
// phase executor can distinguish transient adapter failures from structural
// ones.
type AutopenError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *AutopenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *AutopenError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is an AutopenError with the same Code.
func (e *AutopenError) Is(target error) bool {
	var apErr *AutopenError
	if errors.As(target, &apErr) {
		return e.Code == apErr.Code
	}
	return false
}

// NewError creates a new non-retryable AutopenError with the given code and message.
func NewError(code ErrorCode, message string) *AutopenError {
	return &AutopenError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable AutopenError with the given code
// and message. Use this for transient errors that may succeed on retry
// (e.g., adapter timeouts, flaky subprocess exits).
func NewRetryableError(code ErrorCode, message string) *AutopenError {
	return &AutopenError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable AutopenError that wraps an existing
// error. The wrapped error is accessible via Unwrap() for chain inspection.
func WrapError(code ErrorCode, message string, cause error) *AutopenError {
	return &AutopenError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// WrapRetryableError creates a retryable AutopenError wrapping an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *AutopenError {
	return &AutopenError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// IsRetryable reports whether err (or any error in its chain) is an
// AutopenError marked retryable. Non-AutopenError values are treated as
// non-retryable.
func IsRetryable(err error) bool {
	var apErr *AutopenError
	if errors.As(err, &apErr) {
		return apErr.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode from err's chain, or returns the empty code
// when err is not an AutopenError.
func CodeOf(err error) ErrorCode {
	var apErr *AutopenError
	if errors.As(err, &apErr) {
		return apErr.Code
	}
	return ""
}
