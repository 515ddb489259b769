// Package errors defines stable error codes for devmind failure modes.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// StorageUnavailable indicates the index database could not be opened
	StorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	// StorageCorrupt indicates the index database is present but unusable
	StorageCorrupt ErrorCode = "STORAGE_CORRUPT"
	// ProjectRootMissing indicates the configured project root does not exist
	ProjectRootMissing ErrorCode = "PROJECT_ROOT_MISSING"
	// IndexBusy indicates a storage transaction kept conflicting after retries
	IndexBusy ErrorCode = "INDEX_BUSY"
	// HistoryUnavailable indicates the project is not a git repository
	HistoryUnavailable ErrorCode = "HISTORY_UNAVAILABLE"
	// InvalidArgument indicates a malformed tool or CLI argument
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// DevmindError carries a stable code alongside a human message and cause.
type DevmindError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a DevmindError with the given code and message.
func New(code ErrorCode, message string, cause error) *DevmindError {
	return &DevmindError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *DevmindError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DevmindError) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details to the error.
func (e *DevmindError) WithDetails(details interface{}) *DevmindError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from err, or InternalError if err carries
// no DevmindError in its chain.
func CodeOf(err error) ErrorCode {
	var de *DevmindError
	if errors.As(err, &de) {
		return de.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
