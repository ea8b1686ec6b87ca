package cms

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sort"
	"time"
)

// ContentInfo represents the top-level CMS structure (RFC 5652 Section 3).
type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// SignedData represents CMS SignedData (RFC 5652 Section 5).
type SignedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo EncapsulatedContentInfo
	Certificates     rawCertificates `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue   `asn1:"optional,tag:1"`
	SignerInfos      []SignerInfo    `asn1:"set"`
}

// rawCertificates carries the IMPLICIT [0] CertificateSet verbatim.
type rawCertificates struct {
	Raw asn1.RawContent
}

// EncapsulatedContentInfo represents the content being signed (RFC 5652 Section 5.2).
// EContent holds the whole [0] element; encoding/asn1 does not apply
// explicit tags to RawValue fields when marshalling.
type EncapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// SignerInfo contains the signature and related info (RFC 5652 Section 5.3).
// SignedAttrs keeps the received [0] encoding so that signatures are checked
// over the exact bytes that were signed.
type SignerInfo struct {
	Version            int
	SID                asn1.RawValue
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

// IssuerAndSerialNumber identifies a certificate by issuer and serial.
type IssuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

// Attribute represents a CMS attribute (RFC 5652 Section 5.3).
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

// NewAttribute creates a new attribute with a single value.
func NewAttribute(oid asn1.ObjectIdentifier, value any) (Attribute, error) {
	encoded, err := asn1.Marshal(value)
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{
		Type:   oid,
		Values: []asn1.RawValue{{FullBytes: encoded}},
	}, nil
}

// NewContentTypeAttr creates a content-type attribute.
func NewContentTypeAttr(contentType asn1.ObjectIdentifier) (Attribute, error) {
	return NewAttribute(OIDContentType, contentType)
}

// NewMessageDigestAttr creates a message-digest attribute.
func NewMessageDigestAttr(digest []byte) (Attribute, error) {
	return NewAttribute(OIDMessageDigest, digest)
}

// NewSigningTimeAttr creates a signing-time attribute. encoding/asn1 picks
// UTCTime for years 1950-2049 as RFC 5652 requires.
func NewSigningTimeAttr(t time.Time) (Attribute, error) {
	return NewAttribute(OIDSigningTime, t.UTC())
}

// MarshalSignedAttrs encodes attributes as a DER SET OF, sorting the
// elements by their encoding.
func MarshalSignedAttrs(attrs []Attribute) ([]byte, error) {
	encoded := make([][]byte, len(attrs))
	for i, attr := range attrs {
		der, err := asn1.Marshal(attr)
		if err != nil {
			return nil, err
		}
		encoded[i] = der
	}

	sort.Slice(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	})

	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      bytes.Join(encoded, nil),
	})
}

// FindAttribute returns the first attribute of the given type, or nil.
func FindAttribute(attrs []Attribute, oid asn1.ObjectIdentifier) *Attribute {
	for i := range attrs {
		if attrs[i].Type.Equal(oid) {
			return &attrs[i]
		}
	}
	return nil
}

// SingleValue returns the only value of an attribute. Attribute values are
// SETs, but every attribute handled here is single-valued.
func (a *Attribute) SingleValue() ([]byte, error) {
	if len(a.Values) != 1 {
		return nil, fmt.Errorf("%w: attribute %v has %d values", ErrInvalidContent, a.Type, len(a.Values))
	}
	return a.Values[0].FullBytes, nil
}

// ParseSignedData parses a ContentInfo that wraps SignedData.
func ParseSignedData(der []byte) (*SignedData, error) {
	var ci ContentInfo
	rest, err := asn1.Unmarshal(der, &ci)
	if err != nil {
		return nil, &CMSError{Op: "parse", Err: fmt.Errorf("%w: ContentInfo: %w", ErrInvalidContent, err)}
	}
	if len(rest) > 0 {
		return nil, &CMSError{Op: "parse", Err: fmt.Errorf("%w: trailing data after ContentInfo", ErrInvalidContent)}
	}
	if !ci.ContentType.Equal(OIDSignedData) {
		return nil, &CMSError{Op: "parse", Err: fmt.Errorf("%w: content type %v is not SignedData", ErrInvalidContent, ci.ContentType)}
	}

	var sd SignedData
	rest, err = asn1.Unmarshal(ci.Content.Bytes, &sd)
	if err != nil {
		return nil, &CMSError{Op: "parse", Err: fmt.Errorf("%w: SignedData: %w", ErrInvalidContent, err)}
	}
	if len(rest) > 0 {
		return nil, &CMSError{Op: "parse", Err: fmt.Errorf("%w: trailing data after SignedData", ErrInvalidContent)}
	}
	return &sd, nil
}

// Content returns the encapsulated content octets.
func (sd *SignedData) Content() ([]byte, error) {
	if len(sd.EncapContentInfo.EContent.Bytes) == 0 {
		return nil, fmt.Errorf("%w: no encapsulated content", ErrInvalidContent)
	}
	var content []byte
	rest, err := asn1.Unmarshal(sd.EncapContentInfo.EContent.Bytes, &content)
	if err != nil {
		return nil, fmt.Errorf("%w: eContent: %w", ErrInvalidContent, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after eContent", ErrInvalidContent)
	}
	return content, nil
}

// HasCertificates reports whether a CertificateSet is present.
func (sd *SignedData) HasCertificates() bool {
	return len(sd.Certificates.Raw) > 0
}

// ParsedCertificates returns the embedded certificates, or nil when the
// CertificateSet is absent.
func (sd *SignedData) ParsedCertificates() ([]*x509.Certificate, error) {
	if !sd.HasCertificates() {
		return nil, nil
	}
	var set asn1.RawValue
	if _, err := asn1.Unmarshal(sd.Certificates.Raw, &set); err != nil {
		return nil, fmt.Errorf("%w: certificates: %w", ErrInvalidContent, err)
	}
	certs, err := x509.ParseCertificates(set.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: certificates: %w", ErrInvalidContent, err)
	}
	return certs, nil
}

// Signer returns the single SignerInfo.
func (sd *SignedData) Signer() (*SignerInfo, error) {
	if len(sd.SignerInfos) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrNoSigner, len(sd.SignerInfos))
	}
	return &sd.SignerInfos[0], nil
}

// SignedAttributesDER returns the signed attributes re-tagged as a SET OF,
// which is what the signature covers (RFC 5652 Section 5.4).
func (si *SignerInfo) SignedAttributesDER() ([]byte, error) {
	if len(si.SignedAttrs.FullBytes) == 0 {
		return nil, fmt.Errorf("%w: no signed attributes", ErrMissingAttribute)
	}
	der := bytes.Clone(si.SignedAttrs.FullBytes)
	der[0] = 0x31
	return der, nil
}

// Attributes decodes the signed attributes.
func (si *SignerInfo) Attributes() ([]Attribute, error) {
	if len(si.SignedAttrs.FullBytes) == 0 {
		return nil, nil
	}
	der, err := si.SignedAttributesDER()
	if err != nil {
		return nil, err
	}
	var attrs []Attribute
	rest, err := asn1.UnmarshalWithParams(der, &attrs, "set")
	if err != nil {
		return nil, fmt.Errorf("%w: signed attributes: %w", ErrInvalidContent, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after signed attributes", ErrInvalidContent)
	}
	return attrs, nil
}

// IssuerAndSerial decodes the signer identifier. Only the
// issuerAndSerialNumber choice is supported.
func (si *SignerInfo) IssuerAndSerial() (*IssuerAndSerialNumber, error) {
	var ias IssuerAndSerialNumber
	if _, err := asn1.Unmarshal(si.SID.FullBytes, &ias); err != nil {
		return nil, fmt.Errorf("%w: signer identifier: %w", ErrInvalidContent, err)
	}
	return &ias, nil
}
