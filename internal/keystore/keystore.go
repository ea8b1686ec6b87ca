// Package keystore loads the time-stamping certificate and private key.
package keystore

import (
	"crypto"
	"crypto/x509"
)

// CredentialSource provides the signing certificate and its private key.
// Implementations must be safe for concurrent use.
type CredentialSource interface {
	Certificate() (*x509.Certificate, error)
	PrivateKey() (crypto.PrivateKey, error)
}

// StaticSource is an in-memory CredentialSource.
type StaticSource struct {
	Cert *x509.Certificate
	Key  crypto.PrivateKey
}

// NewStaticSource returns a source serving cert and key.
func NewStaticSource(cert *x509.Certificate, key crypto.PrivateKey) *StaticSource {
	return &StaticSource{Cert: cert, Key: key}
}

// Certificate implements CredentialSource.
func (s *StaticSource) Certificate() (*x509.Certificate, error) {
	if s.Cert == nil {
		return nil, &Error{Op: "load", Err: ErrNotFound}
	}
	return s.Cert, nil
}

// PrivateKey implements CredentialSource.
func (s *StaticSource) PrivateKey() (crypto.PrivateKey, error) {
	if s.Key == nil {
		return nil, &Error{Op: "load", Err: ErrNoKey}
	}
	return s.Key, nil
}
