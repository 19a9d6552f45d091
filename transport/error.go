package transport

import (
	"errors"
	"fmt"
)

// Error is a structured transport error. StatusCode is 0 for
// connection-level failures that never produced a response.
type Error struct {
	StatusCode int
	Message    string
	Retryable  bool
	// Body is the error response body, if any.
	Body []byte
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode exposes the status to the classifier and retry layers.
func (e *Error) HTTPStatusCode() int {
	return e.StatusCode
}

// NewTimeoutError wraps a timeout as a retryable transport error.
func NewTimeoutError(err error) *Error {
	return &Error{Message: err.Error(), Retryable: true, Err: err}
}

// NewConnectionError wraps a connection failure as a retryable
// transport error.
func NewConnectionError(err error) *Error {
	return &Error{Message: err.Error(), Retryable: true, Err: err}
}

// ClassifyStatusCode converts an HTTP status into a typed error.
// Returns nil for 2xx.
func ClassifyStatusCode(statusCode int, body []byte) *Error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	retryable := false
	switch {
	case statusCode == 408 || statusCode == 429:
		retryable = true
	case statusCode >= 500:
		retryable = true
	}

	return &Error{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d", statusCode),
		Retryable:  retryable,
		Body:       body,
	}
}

// StatusOf returns the HTTP status carried anywhere in err's chain, or
// 0 if there is none.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
