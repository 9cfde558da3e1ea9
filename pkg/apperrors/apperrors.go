package apperrors

import (
	"errors"
	"fmt"
)

// Standard error types for the external boundaries the pipeline crosses
var (
	ErrNotFound         = errors.New("resource not found")
	ErrTimeout          = errors.New("timeout")
	ErrTemporaryFailure = errors.New("temporary failure")
	ErrTransport        = errors.New("transport failure")
	ErrRejected         = errors.New("request rejected")
	ErrInternal         = errors.New("internal error")
)

// AppError carries the boundary error with enough context to decide whether a
// run-level retry is worth attempting
type AppError struct {
	Err       error
	Message   string
	Retryable bool
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError wrapping the given sentinel
func New(err error, message string, retryable bool) *AppError {
	return &AppError{
		Err:       err,
		Message:   message,
		Retryable: retryable,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(err error, retryable bool, format string, args ...interface{}) *AppError {
	return New(err, fmt.Sprintf(format, args...), retryable)
}

// IsRetryable checks if the error is worth retrying at a run-level boundary
func IsRetryable(err error) bool {
	var appErr *AppError

	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	return errors.Is(err, ErrTemporaryFailure) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrTransport)
}

// IsNotFound checks if the error represents a missing upstream resource
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *AppError {
	return New(ErrNotFound, message, false)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string) *AppError {
	return New(ErrTimeout, message, true)
}

// NewTemporaryError creates a temporary error
func NewTemporaryError(message string) *AppError {
	return New(ErrTemporaryFailure, message, true)
}

// NewTransportError creates a transport error
func NewTransportError(message string) *AppError {
	return New(ErrTransport, message, true)
}

// NewRejectedError creates an error for a request the remote service refused
func NewRejectedError(message string) *AppError {
	return New(ErrRejected, message, false)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return New(ErrInternal, message, false)
}
