package tsa

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/remiblancher/qtsa/internal/cms"
	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/keystore"
	"github.com/remiblancher/qtsa/internal/tsp"
)

// Validator inspects time-stamp responses and decides whether they were
// issued with the configured TSA certificate.
type Validator struct {
	creds  keystore.CredentialSource
	logger *logrus.Entry

	initMu sync.Mutex
	state  atomic.Pointer[trustAnchor]
}

// trustAnchor is a certificate and a verifier for its key.
type trustAnchor struct {
	certificate *x509.Certificate
	verifier    *cms.Verifier
}

func newTrustAnchor(cert *x509.Certificate) (*trustAnchor, error) {
	verifier, err := cms.NewVerifier(cert.PublicKey)
	if err != nil {
		return nil, err
	}
	return &trustAnchor{certificate: cert, verifier: verifier}, nil
}

// NewValidator creates an uninitialized validator.
func NewValidator(creds keystore.CredentialSource, opts ...Option) *Validator {
	o := newOptions("validator", opts)
	return &Validator{creds: creds, logger: o.logger}
}

// Initialize loads the TSA certificate. Calling it again after a success
// does nothing.
func (v *Validator) Initialize() error {
	v.initMu.Lock()
	defer v.initMu.Unlock()

	if v.state.Load() != nil {
		return nil
	}
	if v.creds == nil {
		return &InitializationError{Component: "validator", Err: errors.New("no credential source")}
	}
	cert, err := v.creds.Certificate()
	if err != nil {
		return &InitializationError{Component: "validator", Err: err}
	}
	anchor, err := newTrustAnchor(cert)
	if err != nil {
		return &InitializationError{Component: "validator", Err: err}
	}
	v.state.Store(anchor)

	v.logger.WithField("subject", cert.Subject.String()).Info("Time-stamp validator initialized")
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (v *Validator) Initialized() bool {
	return v.state.Load() != nil
}

// Validate inspects a DER-encoded TimeStampResp.
func (v *Validator) Validate(response []byte) (*domain.TimeStampValidationResult, error) {
	anchor := v.state.Load()
	if anchor == nil {
		return nil, ErrNotInitialized
	}
	resp, err := tsp.ParseResponse(response)
	if err != nil {
		return nil, err
	}
	return v.validate(anchor, resp)
}

// ValidateReader reads one TimeStampResp from r and inspects it.
func (v *Validator) ValidateReader(r io.Reader) (*domain.TimeStampValidationResult, error) {
	anchor := v.state.Load()
	if anchor == nil {
		return nil, ErrNotInitialized
	}
	resp, err := tsp.ReadResponse(r)
	if err != nil {
		return nil, err
	}
	return v.validate(anchor, resp)
}

// ValidateWithCertificate inspects a response against a caller-supplied
// certificate in DER or PEM form instead of the configured one. It does not
// require Initialize.
func (v *Validator) ValidateWithCertificate(response, certificate []byte) (*domain.TimeStampValidationResult, error) {
	cert, err := parseCertificate(certificate)
	if err != nil {
		return nil, err
	}
	anchor, err := newTrustAnchor(cert)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	resp, err := tsp.ParseResponse(response)
	if err != nil {
		return nil, err
	}
	return v.validate(anchor, resp)
}

func parseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidCertificate, block.Type)
		}
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	return cert, nil
}

func (v *Validator) validate(anchor *trustAnchor, resp *tsp.Response) (*domain.TimeStampValidationResult, error) {
	if resp.Token == nil {
		v.logger.Debug("Response carries no time-stamp token")
		return mapValidationResult(resp, nil, false), nil
	}

	token := resp.Token
	if algOID := token.HashAlgorithmOID(); !domain.IsKnownHashAlgorithm(algOID) {
		return nil, &UnknownHashAlgorithmError{OID: algOID}
	}
	sc, err := extractSigningCertificate(token, v.logger)
	if err != nil {
		return nil, err
	}
	return mapValidationResult(resp, sc, v.signedBy(anchor, token, sc)), nil
}

// signedBy reports whether token was signed with the anchor's key, names
// the anchor certificate and falls within its validity.
func (v *Validator) signedBy(anchor *trustAnchor, token *tsp.Token, sc *signingCertificate) bool {
	logger := v.logger.WithField("serial", token.Info.SerialNumber.String())

	if err := anchor.verifier.Verify(token.SignedData); err != nil {
		logger.WithError(err).Info("Time-stamp token signature does not verify with the TSA key")
		return false
	}

	matches, err := certificateMatches(anchor.certificate, sc.HashAlgorithm, sc.Hash)
	if err != nil {
		logger.WithError(err).Info("Cannot compare the ESS certificate identifier with the TSA certificate")
		return false
	}
	if !matches {
		logger.Info("ESS certificate identifier does not name the TSA certificate")
		return false
	}

	genTime := token.Info.GenTime
	cert := anchor.certificate
	if genTime.Before(cert.NotBefore) || genTime.After(cert.NotAfter) {
		logger.WithField("gen_time", genTime).Info("TSA certificate was not valid at the time-stamp generation time")
		return false
	}
	return true
}
