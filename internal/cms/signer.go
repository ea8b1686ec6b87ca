package cms

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys remain supported for existing TSA deployments.
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"time"
)

// SignerConfig contains options for signing.
type SignerConfig struct {
	Certificate *x509.Certificate
	Signer      crypto.Signer

	// SignatureAlgorithm selects both the signature scheme and the digest
	// used for the messageDigest attribute.
	SignatureAlgorithm SignatureAlgorithm

	// ESSCertIDHash is the digest of the ESS signing-certificate identifier.
	// SHA-1 emits SigningCertificate, anything else SigningCertificateV2.
	ESSCertIDHash crypto.Hash

	IncludeCertificates bool
	SigningTime         time.Time
	ContentType         asn1.ObjectIdentifier

	// Rand defaults to crypto/rand.
	Rand io.Reader
}

// Sign creates a CMS SignedData ContentInfo encapsulating content.
func Sign(content []byte, config *SignerConfig) ([]byte, error) {
	if err := config.check(); err != nil {
		return nil, &CMSError{Op: "sign", Err: err}
	}
	der, err := sign(content, config)
	if err != nil {
		return nil, &CMSError{Op: "sign", Err: err}
	}
	return der, nil
}

func (c *SignerConfig) check() error {
	if c == nil || c.Certificate == nil {
		return errors.New("certificate is required")
	}
	if c.Signer == nil {
		return errors.New("signer is required")
	}
	if c.SignatureAlgorithm.OID == nil {
		return fmt.Errorf("%w: no signature algorithm", ErrUnsupportedAlgorithm)
	}
	if got := publicKeyAlgorithm(c.Signer.Public()); got != c.SignatureAlgorithm.Key {
		return fmt.Errorf("%w: %s cannot be used with a %v key",
			ErrUnsupportedAlgorithm, c.SignatureAlgorithm.Name, got)
	}
	if c.ESSCertIDHash == 0 {
		c.ESSCertIDHash = crypto.SHA256
	}
	if c.SigningTime.IsZero() {
		c.SigningTime = time.Now()
	}
	if len(c.ContentType) == 0 {
		c.ContentType = OIDData
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	return nil
}

func sign(content []byte, config *SignerConfig) ([]byte, error) {
	digestAlg := config.SignatureAlgorithm.Hash
	digestAlgID, err := DigestAlgorithmIdentifier(digestAlg)
	if err != nil {
		return nil, err
	}

	digest, err := Digest(digestAlg, content)
	if err != nil {
		return nil, err
	}

	signedAttrs, err := buildSignedAttrs(config, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to build signed attributes: %w", err)
	}

	signedAttrsDER, err := MarshalSignedAttrs(signedAttrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signed attributes: %w", err)
	}

	attrsDigest, err := Digest(digestAlg, signedAttrsDER)
	if err != nil {
		return nil, err
	}
	signature, err := config.Signer.Sign(config.Rand, attrsDigest, digestAlg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	sid, err := asn1.Marshal(IssuerAndSerialNumber{
		Issuer:       asn1.RawValue{FullBytes: config.Certificate.RawIssuer},
		SerialNumber: config.Certificate.SerialNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signer identifier: %w", err)
	}

	// The SET OF tag becomes the IMPLICIT [0] of the SignerInfo field.
	signedAttrsField := append([]byte(nil), signedAttrsDER...)
	signedAttrsField[0] = 0xA0

	signerInfo := SignerInfo{
		Version:            1,
		SID:                asn1.RawValue{FullBytes: sid},
		DigestAlgorithm:    digestAlgID,
		SignedAttrs:        asn1.RawValue{FullBytes: signedAttrsField},
		SignatureAlgorithm: config.SignatureAlgorithm.AlgorithmIdentifier(),
		Signature:          signature,
	}

	eContent, err := asn1.Marshal(content)
	if err != nil {
		return nil, err
	}

	signedData := SignedData{
		Version:          signedDataVersion(config.ContentType),
		DigestAlgorithms: []pkix.AlgorithmIdentifier{digestAlgID},
		EncapContentInfo: EncapsulatedContentInfo{
			EContentType: config.ContentType,
			EContent:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: eContent},
		},
		SignerInfos: []SignerInfo{signerInfo},
	}

	if config.IncludeCertificates {
		// Marshal strips this outer header and applies the [0] tag.
		set, err := asn1.Marshal(asn1.RawValue{
			Class:      asn1.ClassUniversal,
			Tag:        asn1.TagSet,
			IsCompound: true,
			Bytes:      config.Certificate.Raw,
		})
		if err != nil {
			return nil, err
		}
		signedData.Certificates = rawCertificates{Raw: set}
	}

	signedDataDER, err := asn1.Marshal(signedData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SignedData: %w", err)
	}

	return asn1.Marshal(ContentInfo{
		ContentType: OIDSignedData,
		Content:     asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: signedDataDER},
	})
}

func buildSignedAttrs(config *SignerConfig, digest []byte) ([]Attribute, error) {
	ctAttr, err := NewContentTypeAttr(config.ContentType)
	if err != nil {
		return nil, err
	}
	stAttr, err := NewSigningTimeAttr(config.SigningTime)
	if err != nil {
		return nil, err
	}
	mdAttr, err := NewMessageDigestAttr(digest)
	if err != nil {
		return nil, err
	}
	scAttr, err := NewSigningCertificateAttr(config.Certificate, config.ESSCertIDHash)
	if err != nil {
		return nil, err
	}
	return []Attribute{ctAttr, stAttr, mdAttr, scAttr}, nil
}

// signedDataVersion follows RFC 5652 Section 5.1 for a SignedData without
// attribute certificates or subjectKeyIdentifier signers.
func signedDataVersion(contentType asn1.ObjectIdentifier) int {
	if contentType.Equal(OIDData) {
		return 1
	}
	return 3
}

func publicKeyAlgorithm(pub crypto.PublicKey) x509.PublicKeyAlgorithm {
	switch pub.(type) {
	case *rsa.PublicKey:
		return x509.RSA
	case *ecdsa.PublicKey:
		return x509.ECDSA
	case *dsa.PublicKey:
		return x509.DSA
	default:
		return x509.UnknownPublicKeyAlgorithm
	}
}
