package service

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/qtsa/internal/audit"
	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/metrics"
	"github.com/remiblancher/qtsa/internal/tsa"
	"github.com/remiblancher/qtsa/internal/tsp"
)

type stubSigner struct {
	resp *domain.TimeStampResponseData
	err  error
	cert *x509.Certificate
}

func (s stubSigner) Sign([]byte) (*domain.TimeStampResponseData, error) { return s.resp, s.err }
func (s stubSigner) Initialized() bool                                  { return s.cert != nil }
func (s stubSigner) Certificate() *x509.Certificate                     { return s.cert }

type stubVerifier struct {
	result *domain.TimeStampValidationResult
	err    error
}

func (v stubVerifier) Validate([]byte) (*domain.TimeStampValidationResult, error) {
	return v.result, v.err
}

func (v stubVerifier) ValidateWithCertificate(_, _ []byte) (*domain.TimeStampValidationResult, error) {
	return v.result, v.err
}

func (v stubVerifier) Initialized() bool { return true }

// recordingWriter keeps events in memory.
type recordingWriter struct {
	events []*audit.Event
	err    error
}

func (w *recordingWriter) Write(e *audit.Event) error {
	if w.err != nil {
		return w.err
	}
	w.events = append(w.events, e)
	return nil
}
func (w *recordingWriter) Close() error     { return nil }
func (w *recordingWriter) LastHash() string { return audit.GenesisHash }

// counterValue returns the value of the counter series matching labels, or 0.
func counterValue(t *testing.T, m *metrics.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue series
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

// =============================================================================
// Sign
// =============================================================================

func TestU_TSAService_SignRecordsAuditAndMetrics(t *testing.T) {
	resp := &domain.TimeStampResponseData{Status: domain.StatusRejection}
	w := &recordingWriter{}
	m := metrics.New()
	svc := NewTSAService(stubSigner{resp: resp}, stubVerifier{}, WithAudit(w), WithMetrics(m))

	got, err := svc.Sign(context.Background(), []byte("req"))
	require.NoError(t, err)
	assert.Same(t, resp, got)

	require.Len(t, w.events, 1)
	assert.Equal(t, audit.EventTSASign, w.events[0].EventType)
	assert.Equal(t, "REJECTION", w.events[0].Object.Status)
	assert.Equal(t, "service", w.events[0].Actor.Type)

	assert.Equal(t, 1.0, counterValue(t, m, "qtsa_responses_total", map[string]string{"status": "REJECTION"}))
	assert.Equal(t, 1.0, counterValue(t, m, "qtsa_requests_total",
		map[string]string{"operation": metrics.OpSign, "outcome": metrics.OutcomeSuccess}))
}

func TestU_TSAService_SignError(t *testing.T) {
	w := &recordingWriter{}
	m := metrics.New()
	svc := NewTSAService(stubSigner{err: fmt.Errorf("parse: %w", tsp.ErrInvalidRequest)}, stubVerifier{},
		WithAudit(w), WithMetrics(m))

	_, err := svc.Sign(context.Background(), nil)
	require.ErrorIs(t, err, tsp.ErrInvalidRequest)

	require.Len(t, w.events, 1)
	assert.Equal(t, audit.ResultFailure, w.events[0].Result)
	assert.Equal(t, 1.0, counterValue(t, m, "qtsa_requests_total",
		map[string]string{"operation": metrics.OpSign, "outcome": metrics.OutcomeInvalid}))
	assert.Zero(t, counterValue(t, m, "qtsa_responses_total", map[string]string{"status": "GRANTED"}))
}

func TestU_TSAService_AuditFailureWithholdsResult(t *testing.T) {
	w := &recordingWriter{err: errors.New("disk full")}
	svc := NewTSAService(stubSigner{resp: &domain.TimeStampResponseData{}}, stubVerifier{result: &domain.TimeStampValidationResult{}},
		WithAudit(w))

	resp, err := svc.Sign(context.Background(), nil)
	require.ErrorIs(t, err, ErrAudit)
	assert.Nil(t, resp)

	result, err := svc.Validate(context.Background(), nil)
	require.ErrorIs(t, err, ErrAudit)
	assert.Nil(t, result)
}

// =============================================================================
// Validate
// =============================================================================

func TestU_TSAService_Validate(t *testing.T) {
	serial := big.NewInt(9)
	w := &recordingWriter{}
	svc := NewTSAService(stubSigner{}, stubVerifier{result: &domain.TimeStampValidationResult{
		Status:          domain.StatusGranted,
		SerialNumber:    serial,
		SignedByThisTSA: true,
	}}, WithAudit(w))

	result, err := svc.ValidateWithCertificate(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.SignedByThisTSA)

	require.Len(t, w.events, 1)
	assert.Equal(t, audit.EventTSAValidate, w.events[0].EventType)
	assert.Equal(t, "9", w.events[0].Object.Serial)
	assert.True(t, w.events[0].Context.Verified)
}

func TestU_TSAService_CertificateNotInitialized(t *testing.T) {
	svc := NewTSAService(stubSigner{}, stubVerifier{})

	_, err := svc.Certificate()
	require.ErrorIs(t, err, tsa.ErrNotInitialized)
	assert.Equal(t, map[string]bool{"authority": false, "validator": true}, svc.Checks())
}

func TestU_TSAService_OutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, metrics.OutcomeSuccess},
		{tsp.ErrInvalidResponse, metrics.OutcomeInvalid},
		{&tsa.UnknownHashAlgorithmError{OID: "1.2.3"}, metrics.OutcomeInvalid},
		{tsa.ErrInvalidCertificate, metrics.OutcomeInvalid},
		{tsa.ErrNotInitialized, metrics.OutcomeError},
		{&tsa.ResponseGenerationError{Err: errors.New("boom")}, metrics.OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeOf(tt.err), "%v", tt.err)
	}
}
