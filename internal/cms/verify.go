package cms

import (
	"bytes"
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys remain supported for existing TSA deployments.
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
)

// Verifier checks SignedData signatures against one public key.
type Verifier struct {
	pub crypto.PublicKey
	alg x509.PublicKeyAlgorithm
}

// NewVerifier returns a Verifier for an RSA, ECDSA or DSA public key.
func NewVerifier(pub crypto.PublicKey) (*Verifier, error) {
	alg := publicKeyAlgorithm(pub)
	if alg == x509.UnknownPublicKeyAlgorithm {
		return nil, &CMSError{Op: "verify", Err: fmt.Errorf("%w: public key type %T", ErrUnsupportedAlgorithm, pub)}
	}
	return &Verifier{pub: pub, alg: alg}, nil
}

// Verify checks the single signer of sd: the contentType attribute must
// match the encapsulated content type, the messageDigest attribute must
// match the content, and the signature must verify over the signed
// attributes with the Verifier's key.
func (v *Verifier) Verify(sd *SignedData) error {
	if err := v.verify(sd); err != nil {
		return &CMSError{Op: "verify", Err: err}
	}
	return nil
}

func (v *Verifier) verify(sd *SignedData) error {
	si, err := sd.Signer()
	if err != nil {
		return err
	}

	digestAlg, ok := HashForOID(si.DigestAlgorithm.Algorithm)
	if !ok {
		return fmt.Errorf("%w: digest %v", ErrUnsupportedAlgorithm, si.DigestAlgorithm.Algorithm)
	}

	keyAlg, sigHash, ok := keyFamily(si.SignatureAlgorithm.Algorithm)
	if !ok {
		return fmt.Errorf("%w: signature %v", ErrUnsupportedAlgorithm, si.SignatureAlgorithm.Algorithm)
	}
	if keyAlg != v.alg {
		return fmt.Errorf("%w: signature algorithm %v does not match a %v key",
			ErrInvalidSignature, si.SignatureAlgorithm.Algorithm, v.alg)
	}
	if sigHash != 0 && sigHash != digestAlg {
		return fmt.Errorf("%w: signature digest %v differs from digest algorithm %v",
			ErrInvalidSignature, sigHash, digestAlg)
	}

	attrs, err := si.Attributes()
	if err != nil {
		return err
	}
	if attrs == nil {
		return fmt.Errorf("%w: no signed attributes", ErrMissingAttribute)
	}

	if err := checkContentType(attrs, sd.EncapContentInfo.EContentType); err != nil {
		return err
	}

	content, err := sd.Content()
	if err != nil {
		return err
	}
	if err := checkMessageDigest(attrs, digestAlg, content); err != nil {
		return err
	}

	signedAttrsDER, err := si.SignedAttributesDER()
	if err != nil {
		return err
	}
	digest, err := Digest(digestAlg, signedAttrsDER)
	if err != nil {
		return err
	}
	if !v.verifyDigest(digestAlg, digest, si.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

func checkContentType(attrs []Attribute, want asn1.ObjectIdentifier) error {
	attr := FindAttribute(attrs, OIDContentType)
	if attr == nil {
		return fmt.Errorf("%w: content-type", ErrMissingAttribute)
	}
	value, err := attr.SingleValue()
	if err != nil {
		return err
	}
	var got asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(value, &got); err != nil {
		return fmt.Errorf("%w: content-type: %w", ErrInvalidContent, err)
	}
	if !got.Equal(want) {
		return fmt.Errorf("%w: content-type attribute %v does not match %v", ErrInvalidSignature, got, want)
	}
	return nil
}

func checkMessageDigest(attrs []Attribute, h crypto.Hash, content []byte) error {
	attr := FindAttribute(attrs, OIDMessageDigest)
	if attr == nil {
		return fmt.Errorf("%w: message-digest", ErrMissingAttribute)
	}
	value, err := attr.SingleValue()
	if err != nil {
		return err
	}
	var got []byte
	if _, err := asn1.Unmarshal(value, &got); err != nil {
		return fmt.Errorf("%w: message-digest: %w", ErrInvalidContent, err)
	}
	want, err := Digest(h, content)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: message digest mismatch", ErrInvalidSignature)
	}
	return nil
}

func (v *Verifier) verifyDigest(h crypto.Hash, digest, signature []byte) bool {
	switch pub := v.pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(pub, h, digest, signature) == nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(pub, digest, signature)
	case *dsa.PublicKey:
		return verifyDSA(pub, digest, signature)
	}
	return false
}
