package tsp

import (
	"errors"
	"fmt"
)

// Error represents a Time-Stamp Protocol codec error with structured context.
// It supports errors.Is() and errors.As() for improved error handling.
type Error struct {
	Op  string // Operation: "parse request", "parse response", "parse token", "read"
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("tsp %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors for codec operations.
// Use errors.Is() to check for these errors through the error chain.
var (
	// ErrInvalidRequest indicates the timestamp request is malformed.
	ErrInvalidRequest = errors.New("invalid timestamp request")

	// ErrInvalidResponse indicates the timestamp response is malformed.
	ErrInvalidResponse = errors.New("invalid timestamp response")
)

func invalidRequest(op string, cause error) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrInvalidRequest, cause)}
}

func invalidResponse(op string, cause error) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrInvalidResponse, cause)}
}
