package cms

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	// Register the digest implementations behind crypto.Hash.New.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

var digestOIDs = []struct {
	oid  asn1.ObjectIdentifier
	hash crypto.Hash
}{
	{OIDSHA1, crypto.SHA1},
	{OIDSHA224, crypto.SHA224},
	{OIDSHA256, crypto.SHA256},
	{OIDSHA384, crypto.SHA384},
	{OIDSHA512, crypto.SHA512},
}

// HashForOID returns the digest identified by oid.
func HashForOID(oid asn1.ObjectIdentifier) (crypto.Hash, bool) {
	for _, d := range digestOIDs {
		if d.oid.Equal(oid) {
			return d.hash, true
		}
	}
	return 0, false
}

// OIDForHash returns the object identifier of a digest.
func OIDForHash(h crypto.Hash) (asn1.ObjectIdentifier, bool) {
	for _, d := range digestOIDs {
		if d.hash == h {
			return d.oid, true
		}
	}
	return nil, false
}

// DigestAlgorithmIdentifier returns the AlgorithmIdentifier of a digest,
// with absent parameters (RFC 5754).
func DigestAlgorithmIdentifier(h crypto.Hash) (pkix.AlgorithmIdentifier, error) {
	oid, ok := OIDForHash(h)
	if !ok {
		return pkix.AlgorithmIdentifier{}, fmt.Errorf("%w: digest %v", ErrUnsupportedAlgorithm, h)
	}
	return pkix.AlgorithmIdentifier{Algorithm: oid}, nil
}

// Digest hashes data with h.
func Digest(h crypto.Hash, data []byte) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("%w: digest %v", ErrUnsupportedAlgorithm, h)
	}
	hf := h.New()
	hf.Write(data)
	return hf.Sum(nil), nil
}

// SignatureAlgorithm binds a JCA-style name ("SHA256withRSA") to its OID,
// digest and key type.
type SignatureAlgorithm struct {
	Name string
	OID  asn1.ObjectIdentifier
	Hash crypto.Hash
	Key  x509.PublicKeyAlgorithm
}

var signatureAlgorithms = []SignatureAlgorithm{
	{"SHA1withRSA", OIDSHA1WithRSA, crypto.SHA1, x509.RSA},
	{"SHA224withRSA", OIDSHA224WithRSA, crypto.SHA224, x509.RSA},
	{"SHA256withRSA", OIDSHA256WithRSA, crypto.SHA256, x509.RSA},
	{"SHA384withRSA", OIDSHA384WithRSA, crypto.SHA384, x509.RSA},
	{"SHA512withRSA", OIDSHA512WithRSA, crypto.SHA512, x509.RSA},
	{"SHA1withECDSA", OIDECDSAWithSHA1, crypto.SHA1, x509.ECDSA},
	{"SHA224withECDSA", OIDECDSAWithSHA224, crypto.SHA224, x509.ECDSA},
	{"SHA256withECDSA", OIDECDSAWithSHA256, crypto.SHA256, x509.ECDSA},
	{"SHA384withECDSA", OIDECDSAWithSHA384, crypto.SHA384, x509.ECDSA},
	{"SHA512withECDSA", OIDECDSAWithSHA512, crypto.SHA512, x509.ECDSA},
	{"SHA1withDSA", OIDDSAWithSHA1, crypto.SHA1, x509.DSA},
	{"SHA224withDSA", OIDDSAWithSHA224, crypto.SHA224, x509.DSA},
	{"SHA256withDSA", OIDDSAWithSHA256, crypto.SHA256, x509.DSA},
	{"SHA384withDSA", OIDDSAWithSHA384, crypto.SHA384, x509.DSA},
	{"SHA512withDSA", OIDDSAWithSHA512, crypto.SHA512, x509.DSA},
}

// LookupSignatureAlgorithm finds a signature algorithm by name.
func LookupSignatureAlgorithm(name string) (SignatureAlgorithm, bool) {
	for _, sa := range signatureAlgorithms {
		if sa.Name == name {
			return sa, true
		}
	}
	return SignatureAlgorithm{}, false
}

func signatureAlgorithmByOID(oid asn1.ObjectIdentifier) (SignatureAlgorithm, bool) {
	for _, sa := range signatureAlgorithms {
		if sa.OID.Equal(oid) {
			return sa, true
		}
	}
	return SignatureAlgorithm{}, false
}

// AlgorithmIdentifier returns the signatureAlgorithm field value. RSA
// identifiers carry NULL parameters, ECDSA and DSA omit them.
func (s SignatureAlgorithm) AlgorithmIdentifier() pkix.AlgorithmIdentifier {
	id := pkix.AlgorithmIdentifier{Algorithm: s.OID}
	if s.Key == x509.RSA {
		id.Parameters = asn1.NullRawValue
	}
	return id
}

// keyFamily returns the key type a signatureAlgorithm OID belongs to and the
// digest it implies. Bare key OIDs (rsaEncryption, id-dsa, id-ecPublicKey)
// imply no digest.
func keyFamily(oid asn1.ObjectIdentifier) (x509.PublicKeyAlgorithm, crypto.Hash, bool) {
	if sa, ok := signatureAlgorithmByOID(oid); ok {
		return sa.Key, sa.Hash, true
	}
	switch {
	case oid.Equal(OIDRSAEncryption):
		return x509.RSA, 0, true
	case oid.Equal(OIDDSA):
		return x509.DSA, 0, true
	case oid.Equal(OIDECPublicKey):
		return x509.ECDSA, 0, true
	}
	return x509.UnknownPublicKeyAlgorithm, 0, false
}
