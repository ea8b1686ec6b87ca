package keystore

import (
	"errors"
	"fmt"
)

// Error reports a keystore failure for a container path.
type Error struct {
	Op   string // Operation: "read", "decode", "load"
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("keystore %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("keystore %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Err }

// Sentinel errors for keystore operations.
var (
	// ErrNotFound indicates the container file or embedded resource is missing.
	ErrNotFound = errors.New("keystore not found")

	// ErrWrongPassword indicates the container password is incorrect.
	ErrWrongPassword = errors.New("keystore password incorrect")

	// ErrMultipleKeys indicates the container holds more than one key entry.
	ErrMultipleKeys = errors.New("keystore holds more than one key entry")

	// ErrNoKey indicates the container holds no key entry.
	ErrNoKey = errors.New("keystore holds no key entry")

	// ErrMalformed indicates the container cannot be decoded.
	ErrMalformed = errors.New("malformed keystore")
)
