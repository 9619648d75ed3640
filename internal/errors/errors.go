package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a gate error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrBackend        ErrorCode = "BACKEND_ERROR"   // 502
	ErrUnavailable    ErrorCode = "UNAVAILABLE"     // 503
)

// GateError represents a structured error with code, status, and details.
type GateError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *GateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *GateError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *GateError {
	return &GateError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a buffer that is unknown or expired.
// Both cases produce the same error.
func NewNotFound(bufferID string) *GateError {
	return &GateError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("buffer not found or expired: %s", bufferID),
		Details: map[string]any{"bufferId": bufferID},
	}
}

// NewBackend creates a 502 error for a failed language-service call.
func NewBackend(tool string, err error) *GateError {
	msg := "backend request failed"
	if err != nil {
		msg = err.Error()
	}
	return &GateError{
		Code:    ErrBackend,
		Status:  502,
		Message: msg,
		Details: map[string]any{"tool": tool},
		Err:     err,
	}
}

// NewUnavailable creates a 503 error when the backend is not running.
func NewUnavailable(msg string) *GateError {
	return &GateError{
		Code:    ErrUnavailable,
		Status:  503,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The cause is kept in Details for logging, not in the message.
func NewInternal(err error) *GateError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &GateError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if an error is a GateError with the given code.
func Is(err error, code ErrorCode) bool {
	var gErr *GateError
	if stderrors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}

// As returns the GateError in err's chain, if any.
func As(err error) (*GateError, bool) {
	var gErr *GateError
	if stderrors.As(err, &gErr) {
		return gErr, true
	}
	return nil, false
}
