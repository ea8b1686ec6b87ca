// Package service connects the HTTP handlers to the time-stamping engine,
// the audit log and the metrics.
package service

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/remiblancher/qtsa/internal/api/middleware"
	"github.com/remiblancher/qtsa/internal/audit"
	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/metrics"
	"github.com/remiblancher/qtsa/internal/tsa"
	"github.com/remiblancher/qtsa/internal/tsp"
)

// ErrAudit is returned when an operation succeeded but its audit event could
// not be recorded. The result is withheld.
var ErrAudit = errors.New("audit log write failed")

// Signer answers time-stamp requests. *tsa.Authority implements it.
type Signer interface {
	Sign(request []byte) (*domain.TimeStampResponseData, error)
	Initialized() bool
	Certificate() *x509.Certificate
}

// Verifier validates time-stamp responses. *tsa.Validator implements it.
type Verifier interface {
	Validate(response []byte) (*domain.TimeStampValidationResult, error)
	ValidateWithCertificate(response, certificate []byte) (*domain.TimeStampValidationResult, error)
	Initialized() bool
}

var (
	_ Signer   = (*tsa.Authority)(nil)
	_ Verifier = (*tsa.Validator)(nil)
)

// TSAService provides TSA operations for the HTTP layer.
type TSAService struct {
	signer   Signer
	verifier Verifier
	audit    audit.Writer
	metrics  *metrics.Metrics
	logger   *logrus.Entry
}

// Option configures a TSAService.
type Option func(*TSAService)

// WithAudit sets the audit writer. Defaults to audit.NopWriter.
func WithAudit(w audit.Writer) Option {
	return func(s *TSAService) { s.audit = w }
}

// WithMetrics sets the metrics collector. Without it nothing is recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TSAService) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *TSAService) { s.logger = logger }
}

// NewTSAService creates a new TSAService.
func NewTSAService(signer Signer, verifier Verifier, opts ...Option) *TSAService {
	s := &TSAService{
		signer:   signer,
		verifier: verifier,
		audit:    audit.NopWriter{},
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "service")
	return s
}

// Sign answers a DER-encoded TimeStampReq.
func (s *TSAService) Sign(ctx context.Context, request []byte) (*domain.TimeStampResponseData, error) {
	done := s.begin(metrics.OpSign)
	resp, err := s.signer.Sign(request)
	done(outcomeOf(err))
	if err == nil && s.metrics != nil {
		s.metrics.ObserveResponse(resp.Status)
	}
	if auditErr := s.record(ctx, audit.SignEvent(resp, err)); auditErr != nil {
		return nil, auditErr
	}
	return resp, err
}

// Validate inspects a DER-encoded TimeStampResp with the configured
// certificate.
func (s *TSAService) Validate(ctx context.Context, response []byte) (*domain.TimeStampValidationResult, error) {
	done := s.begin(metrics.OpValidate)
	result, err := s.verifier.Validate(response)
	done(outcomeOf(err))
	if auditErr := s.record(ctx, audit.ValidateEvent(result, err)); auditErr != nil {
		return nil, auditErr
	}
	return result, err
}

// ValidateWithCertificate inspects a response with a caller-supplied
// certificate.
func (s *TSAService) ValidateWithCertificate(ctx context.Context, response, certificate []byte) (*domain.TimeStampValidationResult, error) {
	done := s.begin(metrics.OpValidate)
	result, err := s.verifier.ValidateWithCertificate(response, certificate)
	done(outcomeOf(err))
	if auditErr := s.record(ctx, audit.ValidateEvent(result, err)); auditErr != nil {
		return nil, auditErr
	}
	return result, err
}

// Certificate describes the signing certificate.
func (s *TSAService) Certificate() (*domain.SigningCertificateInformation, error) {
	cert := s.signer.Certificate()
	if cert == nil {
		return nil, tsa.ErrNotInitialized
	}
	return tsa.CertificateInformation(cert), nil
}

// Checks reports the readiness of each engine.
func (s *TSAService) Checks() map[string]bool {
	return map[string]bool{
		"authority": s.signer.Initialized(),
		"validator": s.verifier.Initialized(),
	}
}

func (s *TSAService) begin(operation string) func(string) {
	if s.metrics == nil {
		return func(string) {}
	}
	return s.metrics.Begin(operation)
}

func (s *TSAService) record(ctx context.Context, event *audit.Event) error {
	event.WithActor(audit.ServiceActor()).
		WithRequest(middleware.GetRequestID(ctx), middleware.GetRemoteAddr(ctx))
	if err := s.audit.Write(event); err != nil {
		s.logger.WithError(err).WithField("event", event.EventType).Error("Failed to write audit event")
		return fmt.Errorf("%w: %w", ErrAudit, err)
	}
	return nil
}

// outcomeOf classifies an engine error for the request counter.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, tsp.ErrInvalidRequest),
		errors.Is(err, tsp.ErrInvalidResponse),
		errors.Is(err, tsa.ErrUnknownHashAlgorithm),
		errors.Is(err, tsa.ErrInvalidCertificate):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
