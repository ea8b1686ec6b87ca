// Package testutil generates time-stamping credentials for tests.
package testutil

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys remain supported for existing TSA deployments.
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"sync"
	"testing"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

var (
	oidExtKeyUsage    = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidKPTimeStamping = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 8}
	oidDSA            = asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}
	oidDSAWithSHA256  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 2}
)

// Credential is a certificate and its private key.
type Credential struct {
	Certificate *x509.Certificate
	Key         crypto.PrivateKey
}

// Signer returns the key as a crypto.Signer. It is nil for DSA keys.
func (c *Credential) Signer() crypto.Signer {
	s, _ := c.Key.(crypto.Signer)
	return s
}

// CertOptions tune generated certificates.
type CertOptions struct {
	CommonName string
	NotBefore  time.Time
	NotAfter   time.Time
	// EKU selects the extended key usage extension: EKUCritical (default),
	// EKUNonCritical or EKUNone.
	EKU EKUMode
}

// EKUMode selects how id-kp-timeStamping is asserted.
type EKUMode int

const (
	EKUCritical EKUMode = iota
	EKUNonCritical
	EKUNone
)

// CertOption modifies CertOptions.
type CertOption func(*CertOptions)

// WithCommonName sets the subject common name.
func WithCommonName(cn string) CertOption {
	return func(o *CertOptions) { o.CommonName = cn }
}

// WithValidity sets the validity window.
func WithValidity(notBefore, notAfter time.Time) CertOption {
	return func(o *CertOptions) {
		o.NotBefore = notBefore
		o.NotAfter = notAfter
	}
}

// WithEKU sets the extended key usage mode.
func WithEKU(mode EKUMode) CertOption {
	return func(o *CertOptions) { o.EKU = mode }
}

func newOptions(opts []CertOption) CertOptions {
	o := CertOptions{
		CommonName: "Test TSA",
		NotBefore:  time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:   time.Now().AddDate(10, 0, 0).UTC(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewRSACredential creates a self-signed RSA 2048 time-stamping credential.
func NewRSACredential(t testing.TB, opts ...CertOption) *Credential {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return newX509Credential(t, key, &key.PublicKey, opts)
}

// NewECCredential creates a self-signed P-256 time-stamping credential.
func NewECCredential(t testing.TB, opts ...CertOption) *Credential {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ECDSA key: %v", err)
	}
	return newX509Credential(t, key, &key.PublicKey, opts)
}

func newX509Credential(t testing.TB, key crypto.Signer, pub crypto.PublicKey, opts []CertOption) *Credential {
	t.Helper()
	o := newOptions(opts)

	template := &x509.Certificate{
		SerialNumber:          randomSerial(t),
		Subject:               pkix.Name{CommonName: o.CommonName, Organization: []string{"Test Org"}},
		NotBefore:             o.NotBefore,
		NotAfter:              o.NotAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}
	switch o.EKU {
	case EKUCritical:
		template.ExtraExtensions = []pkix.Extension{timeStampingEKU(t)}
	case EKUNonCritical:
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return &Credential{Certificate: cert, Key: key}
}

func timeStampingEKU(t testing.TB) pkix.Extension {
	t.Helper()
	value, err := asn1.Marshal([]asn1.ObjectIdentifier{oidKPTimeStamping})
	if err != nil {
		t.Fatalf("Failed to marshal EKU: %v", err)
	}
	return pkix.Extension{Id: oidExtKeyUsage, Critical: true, Value: value}
}

func randomSerial(t testing.TB) *big.Int {
	t.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("Failed to generate serial number: %v", err)
	}
	return serial
}

// =============================================================================
// DSA
// =============================================================================

var (
	dsaParamsOnce sync.Once
	dsaParams     dsa.Parameters
	dsaParamsErr  error
)

// NewDSACredential creates a self-signed DSA time-stamping credential.
// crypto/x509 cannot create DSA certificates, so the certificate is
// assembled by hand. Domain parameters are generated once per process.
func NewDSACredential(t testing.TB, opts ...CertOption) *Credential {
	t.Helper()
	dsaParamsOnce.Do(func() {
		dsaParamsErr = dsa.GenerateParameters(&dsaParams, rand.Reader, dsa.L1024N160)
	})
	if dsaParamsErr != nil {
		t.Fatalf("Failed to generate DSA parameters: %v", dsaParamsErr)
	}

	key := &dsa.PrivateKey{PublicKey: dsa.PublicKey{Parameters: dsaParams}}
	if err := dsa.GenerateKey(key, rand.Reader); err != nil {
		t.Fatalf("Failed to generate DSA key: %v", err)
	}

	der := createDSACertificate(t, key, newOptions(opts))
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse DSA certificate: %v", err)
	}
	return &Credential{Certificate: cert, Key: key}
}

type tbsCertificate struct {
	Version            int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber       *big.Int
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Issuer             asn1.RawValue
	Validity           validity
	Subject            asn1.RawValue
	PublicKey          subjectPublicKeyInfo
	Extensions         []pkix.Extension `asn1:"optional,explicit,tag:3"`
}

type validity struct {
	NotBefore, NotAfter time.Time
}

type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

type certificate struct {
	TBSCertificate     asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

type dssParms struct {
	P, Q, G *big.Int
}

type dssSigValue struct {
	R, S *big.Int
}

func createDSACertificate(t testing.TB, key *dsa.PrivateKey, o CertOptions) []byte {
	t.Helper()
	must := func(b []byte, err error) []byte {
		t.Helper()
		if err != nil {
			t.Fatalf("Failed to build DSA certificate: %v", err)
		}
		return b
	}

	name := must(asn1.Marshal(pkix.Name{CommonName: o.CommonName, Organization: []string{"Test Org"}}.ToRDNSequence()))
	params := must(asn1.Marshal(dssParms{P: key.P, Q: key.Q, G: key.G}))
	pub := must(asn1.Marshal(key.Y))
	sigAlg := pkix.AlgorithmIdentifier{Algorithm: oidDSAWithSHA256}

	tbs := tbsCertificate{
		Version:            2,
		SerialNumber:       randomSerial(t),
		SignatureAlgorithm: sigAlg,
		Issuer:             asn1.RawValue{FullBytes: name},
		Validity:           validity{NotBefore: o.NotBefore.UTC(), NotAfter: o.NotAfter.UTC()},
		Subject:            asn1.RawValue{FullBytes: name},
		PublicKey: subjectPublicKeyInfo{
			Algorithm: pkix.AlgorithmIdentifier{Algorithm: oidDSA, Parameters: asn1.RawValue{FullBytes: params}},
			PublicKey: asn1.BitString{Bytes: pub, BitLength: len(pub) * 8},
		},
	}
	switch o.EKU {
	case EKUCritical:
		tbs.Extensions = []pkix.Extension{timeStampingEKU(t)}
	case EKUNonCritical:
		ext := timeStampingEKU(t)
		ext.Critical = false
		tbs.Extensions = []pkix.Extension{ext}
	}
	tbsDER := must(asn1.Marshal(tbs))

	digest := sha256.Sum256(tbsDER)
	n := (key.Q.BitLen() + 7) / 8
	r, s, err := dsa.Sign(rand.Reader, key, digest[:n])
	if err != nil {
		t.Fatalf("Failed to sign DSA certificate: %v", err)
	}
	sig := must(asn1.Marshal(dssSigValue{R: r, S: s}))

	return must(asn1.Marshal(certificate{
		TBSCertificate:     asn1.RawValue{FullBytes: tbsDER},
		SignatureAlgorithm: sigAlg,
		SignatureValue:     asn1.BitString{Bytes: sig, BitLength: len(sig) * 8},
	}))
}

// =============================================================================
// PKCS#12
// =============================================================================

// PKCS12 encodes the credential as a PKCS#12 container. DSA keys are not
// supported by the encoder.
func (c *Credential) PKCS12(t testing.TB, password string) []byte {
	t.Helper()
	pfx, err := pkcs12.Modern.Encode(c.Key, c.Certificate, nil, password)
	if err != nil {
		t.Fatalf("Failed to encode PKCS#12: %v", err)
	}
	return pfx
}

// TrustStore encodes certificates as a PKCS#12 container without a key.
func TrustStore(t testing.TB, password string, certs ...*x509.Certificate) []byte {
	t.Helper()
	pfx, err := pkcs12.Modern.EncodeTrustStore(certs, password)
	if err != nil {
		t.Fatalf("Failed to encode PKCS#12 trust store: %v", err)
	}
	return pfx
}
