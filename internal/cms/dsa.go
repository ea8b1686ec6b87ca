package cms

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys remain supported for existing TSA deployments.
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"
)

// NewSigner returns a crypto.Signer for a private key. RSA and ECDSA keys are
// returned as is, DSA keys are wrapped because crypto/dsa predates
// crypto.Signer.
func NewSigner(key crypto.PrivateKey) (crypto.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
		return k.(crypto.Signer), nil
	case *dsa.PrivateKey:
		return &dsaSigner{key: k}, nil
	case ed25519.PrivateKey:
		return nil, fmt.Errorf("%w: Ed25519 keys cannot sign time-stamp tokens", ErrUnsupportedAlgorithm)
	default:
		return nil, fmt.Errorf("%w: private key type %T", ErrUnsupportedAlgorithm, key)
	}
}

type dsaSignature struct {
	R, S *big.Int
}

type dsaSigner struct {
	key *dsa.PrivateKey
}

func (s *dsaSigner) Public() crypto.PublicKey {
	return &s.key.PublicKey
}

// Sign produces a DER Dss-Sig-Value. The digest is truncated to the byte
// length of the subgroup order (FIPS 186-3 section 4.6).
func (s *dsaSigner) Sign(rand io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	r, sig, err := dsa.Sign(rand, s.key, truncateDSADigest(&s.key.PublicKey, digest))
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(dsaSignature{R: r, S: sig})
}

func verifyDSA(pub *dsa.PublicKey, digest, signature []byte) bool {
	var sig dsaSignature
	rest, err := asn1.Unmarshal(signature, &sig)
	if err != nil || len(rest) > 0 || sig.R == nil || sig.S == nil {
		return false
	}
	return dsa.Verify(pub, truncateDSADigest(pub, digest), sig.R, sig.S)
}

func truncateDSADigest(pub *dsa.PublicKey, digest []byte) []byte {
	if n := (pub.Q.BitLen() + 7) / 8; len(digest) > n {
		return digest[:n]
	}
	return digest
}
