package cms

import (
	"errors"
	"fmt"
)

// CMSError represents a CMS operation error with structured context.
type CMSError struct {
	Op  string // Operation: "sign", "verify", "parse"
	Err error
}

func (e *CMSError) Error() string {
	return fmt.Sprintf("cms %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CMSError) Unwrap() error { return e.Err }

// Sentinel errors for CMS operations.
var (
	// ErrInvalidSignature indicates signature verification failed.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidContent indicates the CMS content is malformed.
	ErrInvalidContent = errors.New("invalid CMS content")

	// ErrNoSigner indicates the SignedData does not have exactly one signer.
	ErrNoSigner = errors.New("expected exactly one signer")

	// ErrUnsupportedAlgorithm indicates an unsupported cryptographic algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrMissingAttribute indicates a required signed attribute is missing.
	ErrMissingAttribute = errors.New("missing signed attribute")
)
