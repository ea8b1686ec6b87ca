package cms

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ESSCertID identifies a certificate by its SHA-1 hash (RFC 2634).
type ESSCertID struct {
	CertHash     []byte
	IssuerSerial IssuerSerial `asn1:"optional"`
}

// ESSCertIDv2 identifies a certificate by hash (RFC 5035). HashAlgorithm
// is omitted when it is the SHA-256 default.
type ESSCertIDv2 struct {
	HashAlgorithm pkix.AlgorithmIdentifier `asn1:"optional"`
	CertHash      []byte
	IssuerSerial  IssuerSerial `asn1:"optional"`
}

// IssuerSerial names a certificate by issuer GeneralNames and serial.
type IssuerSerial struct {
	Issuer       asn1.RawValue // GeneralNames
	SerialNumber *big.Int
}

// SigningCertificate is the id-aa-signingCertificate value.
type SigningCertificate struct {
	Certs []ESSCertID
}

// SigningCertificateV2 is the id-aa-signingCertificateV2 value.
type SigningCertificateV2 struct {
	Certs []ESSCertIDv2
}

// NewSigningCertificateAttr builds the ESS attribute binding cert to the
// signature. SHA-1 selects the RFC 2634 SigningCertificate attribute, any
// other digest the RFC 5035 SigningCertificateV2 attribute.
func NewSigningCertificateAttr(cert *x509.Certificate, h crypto.Hash) (Attribute, error) {
	certHash, err := Digest(h, cert.Raw)
	if err != nil {
		return Attribute{}, err
	}
	issuerSerial, err := newIssuerSerial(cert)
	if err != nil {
		return Attribute{}, err
	}

	if h == crypto.SHA1 {
		return NewAttribute(OIDSigningCertificate, SigningCertificate{
			Certs: []ESSCertID{{CertHash: certHash, IssuerSerial: issuerSerial}},
		})
	}

	id := ESSCertIDv2{CertHash: certHash, IssuerSerial: issuerSerial}
	if h != crypto.SHA256 {
		if id.HashAlgorithm, err = DigestAlgorithmIdentifier(h); err != nil {
			return Attribute{}, err
		}
	}
	return NewAttribute(OIDSigningCertificateV2, SigningCertificateV2{
		Certs: []ESSCertIDv2{id},
	})
}

// newIssuerSerial wraps the issuer Name as GeneralNames { directoryName [4] }.
func newIssuerSerial(cert *x509.Certificate) (IssuerSerial, error) {
	directoryName, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        4,
		IsCompound: true,
		Bytes:      cert.RawIssuer,
	})
	if err != nil {
		return IssuerSerial{}, err
	}
	generalNames, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSequence,
		IsCompound: true,
		Bytes:      directoryName,
	})
	if err != nil {
		return IssuerSerial{}, err
	}
	return IssuerSerial{
		Issuer:       asn1.RawValue{FullBytes: generalNames},
		SerialNumber: cert.SerialNumber,
	}, nil
}

// CertIdentifier is one decoded ESSCertID or ESSCertIDv2.
type CertIdentifier struct {
	// HashAlgorithm is always set: SHA-1 for ESSCertID, the explicit value
	// or the SHA-256 default for ESSCertIDv2.
	HashAlgorithm asn1.ObjectIdentifier
	Hash          []byte
	// SerialNumber comes from the optional issuerSerial, nil when absent.
	SerialNumber *big.Int
}

var errMalformedESS = errors.New("malformed ESS signing certificate")

// ParseSigningCertificate decodes a SigningCertificate attribute value.
// The hash algorithm of every identifier is SHA-1 by definition.
func ParseSigningCertificate(der []byte) ([]CertIdentifier, error) {
	return parseESSCertIDs(der, false)
}

// ParseSigningCertificateV2 decodes a SigningCertificateV2 attribute value.
func ParseSigningCertificateV2(der []byte) ([]CertIdentifier, error) {
	return parseESSCertIDs(der, true)
}

func parseESSCertIDs(der []byte, v2 bool) ([]CertIdentifier, error) {
	input := cryptobyte.String(der)
	var attr, certs cryptobyte.String
	if !input.ReadASN1(&attr, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, errMalformedESS
	}
	// The optional policies that may follow are not interpreted.
	if !attr.ReadASN1(&certs, cbasn1.SEQUENCE) {
		return nil, errMalformedESS
	}

	var ids []CertIdentifier
	for !certs.Empty() {
		var certID cryptobyte.String
		if !certs.ReadASN1(&certID, cbasn1.SEQUENCE) {
			return nil, errMalformedESS
		}

		id := CertIdentifier{HashAlgorithm: OIDSHA1}
		if v2 {
			id.HashAlgorithm = OIDSHA256
			if certID.PeekASN1Tag(cbasn1.SEQUENCE) {
				var algID cryptobyte.String
				var oid asn1.ObjectIdentifier
				if !certID.ReadASN1(&algID, cbasn1.SEQUENCE) || !algID.ReadASN1ObjectIdentifier(&oid) {
					return nil, errMalformedESS
				}
				id.HashAlgorithm = oid
			}
		}

		if !certID.ReadASN1Bytes(&id.Hash, cbasn1.OCTET_STRING) {
			return nil, errMalformedESS
		}

		if certID.PeekASN1Tag(cbasn1.SEQUENCE) {
			var issuerSerial, names cryptobyte.String
			serial := new(big.Int)
			if !certID.ReadASN1(&issuerSerial, cbasn1.SEQUENCE) ||
				!issuerSerial.ReadASN1(&names, cbasn1.SEQUENCE) ||
				!issuerSerial.ReadASN1Integer(serial) {
				return nil, errMalformedESS
			}
			id.SerialNumber = serial
		}
		if !certID.Empty() {
			return nil, errMalformedESS
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// String is used in log fields.
func (c CertIdentifier) String() string {
	return fmt.Sprintf("%v:%x", c.HashAlgorithm, c.Hash)
}
