package domain

import "crypto/x509"

// PublicKeyAlgorithm is the key type of a signing certificate.
type PublicKeyAlgorithm int

const (
	RSA PublicKeyAlgorithm = iota + 1
	DSA
	EC
)

var publicKeyNames = map[PublicKeyAlgorithm]string{
	RSA: "RSA",
	DSA: "DSA",
	EC:  "EC",
}

// ParsePublicKeyAlgorithm looks up an algorithm by its canonical name.
func ParsePublicKeyAlgorithm(name string) (PublicKeyAlgorithm, bool) {
	for alg, n := range publicKeyNames {
		if n == name {
			return alg, true
		}
	}
	return 0, false
}

// PublicKeyAlgorithmOf maps the key algorithm of a parsed certificate.
func PublicKeyAlgorithmOf(alg x509.PublicKeyAlgorithm) (PublicKeyAlgorithm, bool) {
	switch alg {
	case x509.RSA:
		return RSA, true
	case x509.DSA:
		return DSA, true
	case x509.ECDSA:
		return EC, true
	default:
		return 0, false
	}
}

// String returns the canonical name ("RSA", "DSA", "EC").
func (p PublicKeyAlgorithm) String() string {
	if n, ok := publicKeyNames[p]; ok {
		return n
	}
	return "unknown"
}

// SignatureSuffix returns the name used after "with" in a signature
// algorithm name, e.g. "ECDSA" in "SHA256withECDSA".
func (p PublicKeyAlgorithm) SignatureSuffix() string {
	switch p {
	case RSA:
		return "RSA"
	case DSA:
		return "DSA"
	case EC:
		return "ECDSA"
	default:
		return ""
	}
}

// SignatureAlgorithmName pairs a digest with a key algorithm.
func SignatureAlgorithmName(digest HashAlgorithm, key PublicKeyAlgorithm) string {
	return digest.String() + "with" + key.SignatureSuffix()
}
