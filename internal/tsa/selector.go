package tsa

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/remiblancher/qtsa/internal/cms"
)

var (
	oidExtKeyUsage    = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidKPTimeStamping = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 8}
)

// certificateMatches reports whether cert's DER encoding hashes to hash
// under the digest named by algOID.
func certificateMatches(cert *x509.Certificate, algOID asn1.ObjectIdentifier, hash []byte) (bool, error) {
	h, ok := cms.HashForOID(algOID)
	if !ok || !h.Available() {
		return false, fmt.Errorf("%w: %v", ErrDigestUnavailable, algOID)
	}
	digest, err := cms.Digest(h, cert.Raw)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDigestUnavailable, err)
	}
	return bytes.Equal(digest, hash), nil
}

// selectCertificate returns the first candidate matching the identifier,
// or nil when none does.
func selectCertificate(candidates []*x509.Certificate, algOID asn1.ObjectIdentifier, hash []byte) (*x509.Certificate, error) {
	for _, cert := range candidates {
		ok, err := certificateMatches(cert, algOID, hash)
		if err != nil {
			return nil, err
		}
		if ok {
			return cert, nil
		}
	}
	return nil, nil
}

// checkTimeStampingUsage enforces RFC 3161 Section 2.3: the TSA certificate
// carries a critical extended key usage holding only id-kp-timeStamping.
func checkTimeStampingUsage(cert *x509.Certificate) error {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidExtKeyUsage) {
			continue
		}
		if !ext.Critical {
			return fmt.Errorf("extended key usage of %q is not critical", cert.Subject)
		}
		var usages []asn1.ObjectIdentifier
		if _, err := asn1.Unmarshal(ext.Value, &usages); err != nil {
			return fmt.Errorf("extended key usage of %q: %w", cert.Subject, err)
		}
		if len(usages) != 1 || !usages[0].Equal(oidKPTimeStamping) {
			return fmt.Errorf("extended key usage of %q must be id-kp-timeStamping only", cert.Subject)
		}
		return nil
	}
	return fmt.Errorf("certificate %q has no extended key usage", cert.Subject)
}
