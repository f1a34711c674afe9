package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a qlib error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404
	ErrFileNotFound    ErrorCode = "FILE_NOT_FOUND"   // 404
	ErrMalformedSource ErrorCode = "MALFORMED_SOURCE" // 422
	ErrUnwritable      ErrorCode = "UNWRITABLE"       // 500
	ErrInternal        ErrorCode = "INTERNAL"         // 500
)

// QlibError represents a structured error with code, status, and details.
type QlibError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *QlibError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *QlibError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *QlibError {
	return &QlibError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing run or record.
func NewNotFound(identifier string) *QlibError {
	return &QlibError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error when a path does not exist.
func NewFileNotFound(path string) *QlibError {
	return &QlibError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewMalformedSource creates a 422 error for a source file that cannot be parsed at all.
func NewMalformedSource(path string, err error) *QlibError {
	msg := fmt.Sprintf("malformed source: %s", path)
	if err != nil {
		msg = fmt.Sprintf("malformed source: %s: %v", path, err)
	}
	return &QlibError{
		Code:    ErrMalformedSource,
		Status:  422,
		Message: msg,
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewUnwritable creates a 500 error when an output location cannot be written.
func NewUnwritable(path string, err error) *QlibError {
	msg := fmt.Sprintf("cannot write %s", path)
	if err != nil {
		msg = fmt.Sprintf("cannot write %s: %v", path, err)
	}
	return &QlibError{
		Code:    ErrUnwritable,
		Status:  500,
		Message: msg,
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *QlibError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &QlibError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a QlibError with the given code.
func Is(err error, code ErrorCode) bool {
	var qErr *QlibError
	if stderrors.As(err, &qErr) {
		return qErr.Code == code
	}
	return false
}

// As is a convenience for extracting a *QlibError from an error chain.
func As(err error) (*QlibError, bool) {
	var qErr *QlibError
	ok := stderrors.As(err, &qErr)
	return qErr, ok
}
