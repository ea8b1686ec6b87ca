package tsa

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/remiblancher/qtsa/internal/cms"
	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/keystore"
	"github.com/remiblancher/qtsa/internal/serial"
	"github.com/remiblancher/qtsa/internal/tsp"
)

// Authority answers time-stamp requests. It is safe for concurrent use
// once initialized.
type Authority struct {
	cfg     Config
	creds   keystore.CredentialSource
	serials serial.Generator
	clock   func() time.Time
	logger  *logrus.Entry

	initMu sync.Mutex
	state  atomic.Pointer[signingContext]
}

// signingContext is everything Sign needs. It is immutable once published.
type signingContext struct {
	certificate *x509.Certificate
	signer      crypto.Signer
	algorithm   cms.SignatureAlgorithm
	essHash     crypto.Hash
	policy      asn1.ObjectIdentifier
}

// NewAuthority creates an uninitialized authority.
func NewAuthority(cfg Config, creds keystore.CredentialSource, serials serial.Generator, opts ...Option) *Authority {
	o := newOptions("authority", opts)
	if serials == nil {
		serials = serial.NewRandomGenerator()
	}
	return &Authority{
		cfg:     cfg,
		creds:   creds,
		serials: serials,
		clock:   o.clock,
		logger:  o.logger,
	}
}

// Initialize loads the signing credential and binds the signature
// algorithm. Calling it again after a success does nothing.
func (a *Authority) Initialize() error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.state.Load() != nil {
		return nil
	}
	sc, err := a.build()
	if err != nil {
		return &InitializationError{Component: "authority", Err: err}
	}
	a.state.Store(sc)

	a.logger.WithFields(logrus.Fields{
		"subject":   sc.certificate.Subject.String(),
		"algorithm": sc.algorithm.Name,
		"policy":    sc.policy.String(),
	}).Info("Time-stamp authority initialized")
	return nil
}

func (a *Authority) build() (*signingContext, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if a.creds == nil {
		return nil, errors.New("no credential source")
	}
	cert, err := a.creds.Certificate()
	if err != nil {
		return nil, err
	}
	key, err := a.creds.PrivateKey()
	if err != nil {
		return nil, err
	}
	if err := checkTimeStampingUsage(cert); err != nil {
		return nil, err
	}

	keyAlg, ok := domain.PublicKeyAlgorithmOf(cert.PublicKeyAlgorithm)
	if !ok {
		return nil, fmt.Errorf("unsupported public key algorithm %v", cert.PublicKeyAlgorithm)
	}
	name := domain.SignatureAlgorithmName(a.cfg.SigningDigestAlgorithm, keyAlg)
	alg, ok := cms.LookupSignatureAlgorithm(name)
	if !ok {
		return nil, fmt.Errorf("unsupported signature algorithm %s", name)
	}
	signer, err := cms.NewSigner(key)
	if err != nil {
		return nil, err
	}
	policy, err := domain.ParseOID(a.cfg.PolicyOID)
	if err != nil {
		return nil, err
	}

	return &signingContext{
		certificate: cert,
		signer:      signer,
		algorithm:   alg,
		essHash:     a.cfg.ESSCertIDAlgorithm.CryptoHash(),
		policy:      policy,
	}, nil
}

// Initialized reports whether Initialize has succeeded.
func (a *Authority) Initialized() bool {
	return a.state.Load() != nil
}

// Certificate returns the signing certificate, or nil before Initialize.
func (a *Authority) Certificate() *x509.Certificate {
	if sc := a.state.Load(); sc != nil {
		return sc.certificate
	}
	return nil
}

// Sign answers a DER-encoded TimeStampReq. Requests the authority refuses
// yield a REJECTION response, not an error.
func (a *Authority) Sign(request []byte) (*domain.TimeStampResponseData, error) {
	sc := a.state.Load()
	if sc == nil {
		return nil, ErrNotInitialized
	}
	req, err := tsp.ParseRequest(request)
	if err != nil {
		return nil, err
	}
	return a.sign(sc, req)
}

// SignReader reads one TimeStampReq from r and answers it.
func (a *Authority) SignReader(r io.Reader) (*domain.TimeStampResponseData, error) {
	sc := a.state.Load()
	if sc == nil {
		return nil, ErrNotInitialized
	}
	req, err := tsp.ReadRequest(r)
	if err != nil {
		return nil, err
	}
	return a.sign(sc, req)
}

func (a *Authority) sign(sc *signingContext, req *tsp.Request) (*domain.TimeStampResponseData, error) {
	algOID := req.HashAlgorithmOID()
	alg, ok := domain.LookupHashAlgorithm(algOID)
	if !ok {
		return nil, &UnknownHashAlgorithmError{OID: algOID}
	}

	serialNumber, err := a.serials.Next()
	if err != nil {
		return nil, &ResponseGenerationError{Err: fmt.Errorf("serial number: %w", err)}
	}
	now := a.clock().UTC()
	genTime := now.Truncate(time.Second)

	logger := a.logger.WithFields(logrus.Fields{
		"hash_algorithm": alg.String(),
		"serial":         serialNumber.String(),
	})

	var resp *tsp.Response
	switch {
	case !a.cfg.accepts(alg):
		logger.Warn("Rejecting request with unaccepted hash algorithm")
		resp = tsp.NewRejectionResponse(domain.FailureBadAlgorithm.Bit())
	case !a.cfg.acceptsPolicy(req.PolicyOID()):
		logger.WithField("policy", req.PolicyOID()).Warn("Rejecting request with unaccepted policy")
		resp = tsp.NewRejectionResponse(domain.FailureUnacceptedPolicy.Bit())
	case len(req.MessageImprint.HashedMessage) != alg.Size():
		logger.Warn("Rejecting request with wrong digest length")
		resp = tsp.NewRejectionResponse(domain.FailureBadDataFormat.Bit())
	default:
		token, err := a.token(sc, req, serialNumber, genTime)
		if err != nil {
			return nil, &ResponseGenerationError{Err: err}
		}
		resp = tsp.NewGrantedResponse(token)
		logger.Debug("Time-stamp token issued")
	}

	return mapResponse(req, alg, resp, now, genTime, serialNumber)
}

func (a *Authority) token(sc *signingContext, req *tsp.Request, serialNumber *big.Int, genTime time.Time) ([]byte, error) {
	policy := sc.policy
	if a.cfg.restrictsPolicies() && len(req.ReqPolicy) > 0 {
		policy = req.ReqPolicy
	}
	info := tsp.TSTInfo{
		Version:        1,
		Policy:         policy,
		MessageImprint: req.MessageImprint,
		SerialNumber:   serialNumber,
		GenTime:        genTime,
		Nonce:          req.Nonce,
	}
	content, err := info.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding TSTInfo: %w", err)
	}
	return cms.Sign(content, &cms.SignerConfig{
		Certificate:         sc.certificate,
		Signer:              sc.signer,
		SignatureAlgorithm:  sc.algorithm,
		ESSCertIDHash:       sc.essHash,
		IncludeCertificates: req.CertReq,
		SigningTime:         genTime,
		ContentType:         cms.OIDTSTInfo,
	})
}
