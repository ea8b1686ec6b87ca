package tsa

import (
	"crypto/x509"
	"encoding/asn1"

	"github.com/sirupsen/logrus"

	"github.com/remiblancher/qtsa/internal/cms"
	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/tsp"
)

// signingCertificate is the certificate a token claims to be signed with.
type signingCertificate struct {
	HashAlgorithm asn1.ObjectIdentifier
	Hash          []byte

	// Certificate is the embedded certificate matching the identifier, nil
	// when the token embeds no certificates.
	Certificate *x509.Certificate
}

func (s *signingCertificate) identifier() *domain.SigningCertificateIdentifier {
	return &domain.SigningCertificateIdentifier{
		HashAlgorithmOID: s.HashAlgorithm.String(),
		Hash:             s.Hash,
	}
}

// extractSigningCertificate resolves the ESS signing-certificate attribute
// of token. A nil token yields nil without error.
func extractSigningCertificate(token *tsp.Token, logger *logrus.Entry) (*signingCertificate, error) {
	if token == nil {
		return nil, nil
	}

	id, err := essCertID(token, logger)
	if err != nil {
		return nil, err
	}
	sc := &signingCertificate{HashAlgorithm: id.HashAlgorithm, Hash: id.Hash}

	certs, err := token.Certificates()
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		logger.Debug("The timestamp token does not contain certificates")
		return sc, nil
	}

	cert, err := selectCertificate(certs, id.HashAlgorithm, id.Hash)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, violation("none of the %d embedded certificates matches the ESS certificate identifier", len(certs))
	}
	sc.Certificate = cert
	return sc, nil
}

func essCertID(token *tsp.Token, logger *logrus.Entry) (cms.CertIdentifier, error) {
	si, err := token.SignedData.Signer()
	if err != nil {
		return cms.CertIdentifier{}, violation("%v", err)
	}
	attrs, err := si.Attributes()
	if err != nil {
		return cms.CertIdentifier{}, violation("%v", err)
	}

	var ids []cms.CertIdentifier
	switch {
	case cms.FindAttribute(attrs, cms.OIDSigningCertificate) != nil:
		logger.Debug("Signed 'SigningCertificate' attribute present, using SHA-1 as RFC 2634 requires")
		value, err := cms.FindAttribute(attrs, cms.OIDSigningCertificate).SingleValue()
		if err != nil {
			return cms.CertIdentifier{}, violation("%v", err)
		}
		if ids, err = cms.ParseSigningCertificate(value); err != nil {
			return cms.CertIdentifier{}, violation("SigningCertificate: %v", err)
		}
	case cms.FindAttribute(attrs, cms.OIDSigningCertificateV2) != nil:
		logger.Debug("Signed 'SigningCertificateV2' attribute present")
		value, err := cms.FindAttribute(attrs, cms.OIDSigningCertificateV2).SingleValue()
		if err != nil {
			return cms.CertIdentifier{}, violation("%v", err)
		}
		if ids, err = cms.ParseSigningCertificateV2(value); err != nil {
			return cms.CertIdentifier{}, violation("SigningCertificateV2: %v", err)
		}
	default:
		return cms.CertIdentifier{}, violation("the token carries neither a signed SigningCertificate nor a signed SigningCertificateV2 attribute")
	}

	switch len(ids) {
	case 0:
		return cms.CertIdentifier{}, violation("no ESS certificate identifier present")
	case 1:
		return ids[0], nil
	default:
		return cms.CertIdentifier{}, violation("multiple ESS certificate identifiers present")
	}
}
