package tsa

import (
	"errors"
	"fmt"

	"github.com/remiblancher/qtsa/internal/tsp"
)

// Sentinel errors for the signing and validation engine.
// Use errors.Is() to check for these errors through the error chain.
var (
	// ErrNotInitialized indicates Sign or Validate was called before Initialize.
	ErrNotInitialized = errors.New("time-stamp engine not initialized")

	// ErrInitialization indicates Initialize failed.
	ErrInitialization = errors.New("time-stamp engine initialization failed")

	// ErrUnknownHashAlgorithm indicates a message imprint algorithm outside the registry.
	ErrUnknownHashAlgorithm = errors.New("unknown hash algorithm")

	// ErrResponseGeneration indicates the token could not be built or signed.
	ErrResponseGeneration = errors.New("time-stamp response generation failed")

	// ErrRFCViolation indicates a decodable response that breaks RFC 3161,
	// RFC 2634 or RFC 5035. It is a kind of tsp.ErrInvalidResponse.
	ErrRFCViolation = errors.New("RFC violation")

	// ErrInvalidCertificate indicates an unusable caller-supplied certificate.
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrDigestUnavailable indicates a digest engine could not be built.
	ErrDigestUnavailable = errors.New("digest unavailable")
)

// InitializationError wraps the cause of a failed Initialize.
type InitializationError struct {
	Component string // "authority" or "validator"
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Component, ErrInitialization, e.Err)
}

func (e *InitializationError) Unwrap() []error { return []error{ErrInitialization, e.Err} }

// UnknownHashAlgorithmError names the rejected OID.
type UnknownHashAlgorithmError struct {
	OID string
}

func (e *UnknownHashAlgorithmError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnknownHashAlgorithm, e.OID)
}

func (e *UnknownHashAlgorithmError) Unwrap() error { return ErrUnknownHashAlgorithm }

// ResponseGenerationError wraps a signing failure.
type ResponseGenerationError struct {
	Err error
}

func (e *ResponseGenerationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrResponseGeneration, e.Err)
}

func (e *ResponseGenerationError) Unwrap() []error { return []error{ErrResponseGeneration, e.Err} }

// ViolationError describes an RFC violation found in a decoded response.
type ViolationError struct {
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%v: %v: %s", tsp.ErrInvalidResponse, ErrRFCViolation, e.Reason)
}

// Is matches both ErrRFCViolation and tsp.ErrInvalidResponse.
func (e *ViolationError) Is(target error) bool {
	return target == ErrRFCViolation || target == tsp.ErrInvalidResponse
}

func violation(format string, args ...any) error {
	return &ViolationError{Reason: fmt.Sprintf(format, args...)}
}
