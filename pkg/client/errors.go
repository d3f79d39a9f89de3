package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrAuthRejected is returned when the upstream rejects the credentials.
	// It is terminal: rejected credentials are never retried.
	ErrAuthRejected = errors.New("credentials rejected")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassAuth represents rejected credentials. Terminal.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNetwork represents network/timeout errors. Transient.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassUpstream represents non-200 responses or unexpected
	// upstream response codes. Transient.
	ErrorClassUpstream ErrorClass = "upstream"

	// ErrorClassDecode represents malformed response bodies. Transient:
	// the upstream occasionally returns truncated or non-JSON bodies
	// under load.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError represents an upstream API error with additional context.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// isRetryable reports whether an error is worth another attempt.
// Rejected credentials are terminal; everything else the upstream throws
// at us (network blips, 5xx, garbled bodies) is treated as transient.
func isRetryable(err error) bool {
	if errors.Is(err, ErrAuthRejected) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class != ErrorClassAuth
	}
	return true
}
