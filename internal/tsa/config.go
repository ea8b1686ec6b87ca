package tsa

import (
	"errors"
	"fmt"
	"slices"

	"github.com/remiblancher/qtsa/internal/domain"
)

// DefaultPolicyOID is the policy used when none is configured.
const DefaultPolicyOID = "1.2"

// Config holds the engine settings.
type Config struct {
	// ESSCertIDAlgorithm is the digest of the ESS signing-certificate
	// identifier. SHA1 selects SigningCertificate, anything else
	// SigningCertificateV2.
	ESSCertIDAlgorithm domain.HashAlgorithm

	// SigningDigestAlgorithm is paired with the key type to form the
	// signature algorithm, e.g. SHA256withRSA.
	SigningDigestAlgorithm domain.HashAlgorithm

	// AcceptedHashAlgorithms are the message imprint algorithms that are
	// time-stamped. Other known algorithms are rejected with badAlg.
	AcceptedHashAlgorithms []domain.HashAlgorithm

	// PolicyOID is the TSA policy placed in tokens.
	PolicyOID string

	// AcceptedPolicies restricts the policies a request may name. When it is
	// empty every requested policy is granted and tokens carry PolicyOID.
	// Otherwise a requested policy must be PolicyOID or listed here, is
	// placed in the token, and any other policy is rejected with
	// unacceptedPolicy.
	AcceptedPolicies []string
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		ESSCertIDAlgorithm:     domain.SHA256,
		SigningDigestAlgorithm: domain.SHA256,
		AcceptedHashAlgorithms: []domain.HashAlgorithm{domain.SHA256, domain.SHA512},
		PolicyOID:              DefaultPolicyOID,
	}
}

// Validate checks that every referenced algorithm is known and every
// policy is a well-formed OID.
func (c Config) Validate() error {
	var errs []error
	if c.ESSCertIDAlgorithm.OID() == "" {
		errs = append(errs, fmt.Errorf("unknown ESS cert ID algorithm %v", c.ESSCertIDAlgorithm))
	}
	if c.SigningDigestAlgorithm.OID() == "" {
		errs = append(errs, fmt.Errorf("unknown signing digest algorithm %v", c.SigningDigestAlgorithm))
	}
	if len(c.AcceptedHashAlgorithms) == 0 {
		errs = append(errs, errors.New("no accepted hash algorithms"))
	}
	for _, alg := range c.AcceptedHashAlgorithms {
		if !domain.IsKnownHashAlgorithm(alg.OID()) {
			errs = append(errs, fmt.Errorf("unknown accepted hash algorithm %v", alg))
		}
	}
	if _, err := domain.ParseOID(c.PolicyOID); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	for _, p := range c.AcceptedPolicies {
		if _, err := domain.ParseOID(p); err != nil {
			errs = append(errs, fmt.Errorf("accepted policy: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c Config) accepts(alg domain.HashAlgorithm) bool {
	return slices.Contains(c.AcceptedHashAlgorithms, alg)
}

func (c Config) restrictsPolicies() bool {
	return len(c.AcceptedPolicies) > 0
}

// acceptsPolicy reports whether a request naming oid ("" for none) may be
// granted.
func (c Config) acceptsPolicy(oid string) bool {
	if oid == "" || !c.restrictsPolicies() {
		return true
	}
	return oid == c.PolicyOID || slices.Contains(c.AcceptedPolicies, oid)
}
