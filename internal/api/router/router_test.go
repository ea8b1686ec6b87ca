package router

import (
	"bytes"
	"encoding/asn1"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/qtsa/internal/api/dto"
	apierrors "github.com/remiblancher/qtsa/internal/api/errors"
	"github.com/remiblancher/qtsa/internal/api/handler"
	"github.com/remiblancher/qtsa/internal/api/middleware"
	"github.com/remiblancher/qtsa/internal/api/service"
	"github.com/remiblancher/qtsa/internal/audit"
	"github.com/remiblancher/qtsa/internal/domain"
	"github.com/remiblancher/qtsa/internal/keystore"
	"github.com/remiblancher/qtsa/internal/metrics"
	"github.com/remiblancher/qtsa/internal/serial"
	"github.com/remiblancher/qtsa/internal/testutil"
	"github.com/remiblancher/qtsa/internal/tsa"
	"github.com/remiblancher/qtsa/internal/tsp"
)

type testEnv struct {
	cred    *testutil.Credential
	tsp     http.Handler
	api     http.Handler
	audit   *audit.FileWriter
	metrics *metrics.Metrics
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestEnv(t *testing.T, initialize bool) *testEnv {
	t.Helper()
	cred := testutil.NewRSACredential(t)
	source := keystore.NewStaticSource(cred.Certificate, cred.Key)
	logger := quietLogger()

	authority := tsa.NewAuthority(tsa.DefaultConfig(), source, serial.Fixed(big.NewInt(42)), tsa.WithLogger(logger))
	validator := tsa.NewValidator(source, tsa.WithLogger(logger))
	if initialize {
		require.NoError(t, authority.Initialize())
		require.NoError(t, validator.Initialize())
	}

	writer, err := audit.NewFileWriter(t.TempDir() + "/audit.jsonl")
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	m := metrics.New()
	svc := service.NewTSAService(authority, validator,
		service.WithAudit(writer), service.WithMetrics(m), service.WithLogger(logger))
	cfg := &Config{
		Version:      "test",
		Service:      svc,
		Metrics:      m.Handler(),
		Logger:       logger,
		MaxBodyBytes: 64 << 10,
	}
	return &testEnv{cred: cred, tsp: NewTSP(cfg), api: NewAPI(cfg), audit: writer, metrics: m}
}

func timeStampQuery(t *testing.T, data string) []byte {
	t.Helper()
	req, err := tsp.CreateRequest(domain.SHA256, domain.SHA256.Sum([]byte(data)), big.NewInt(7), true, nil)
	require.NoError(t, err)
	der, err := req.Encoded()
	require.NoError(t, err)
	return der
}

func do(h http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.APIError {
	t.Helper()
	var apiErr dto.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func (e *testEnv) sign(t *testing.T, data string) []byte {
	t.Helper()
	rec := do(e.api, http.MethodPost, "/sign", handler.MediaTypeTimeStampQuery, timeStampQuery(t, data))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.Bytes()
}

// =============================================================================
// TSP listener
// =============================================================================

func TestU_TSP_Query(t *testing.T) {
	env := newTestEnv(t, true)

	rec := do(env.tsp, http.MethodPost, "/", handler.MediaTypeTimeStampQuery, timeStampQuery(t, "hello"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, handler.MediaTypeTimeStampReply, rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	resp, err := tsp.ParseResponse(rec.Body.Bytes())
	require.NoError(t, err)
	require.NotNil(t, resp.Token)
	assert.Equal(t, int64(42), resp.Token.Info.SerialNumber.Int64())
}

func TestU_TSP_UnsupportedMediaType(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		name        string
		method      string
		contentType string
	}{
		{"wrong content type", http.MethodPost, "application/octet-stream"},
		{"no content type", http.MethodPost, ""},
		{"GET", http.MethodGet, ""},
		{"PUT", http.MethodPut, handler.MediaTypeTimeStampQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(env.tsp, tt.method, "/", tt.contentType, timeStampQuery(t, "x"))
			assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
			assert.Equal(t, apierrors.CodeUnsupportedMediaType, decodeError(t, rec).Code)
		})
	}
}

func TestU_TSP_OnlyRootPath(t *testing.T) {
	env := newTestEnv(t, true)

	rec := do(env.tsp, http.MethodPost, "/sign", handler.MediaTypeTimeStampQuery, timeStampQuery(t, "x"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestU_TSP_MalformedRequest(t *testing.T) {
	env := newTestEnv(t, true)

	rec := do(env.tsp, http.MethodPost, "/", handler.MediaTypeTimeStampQuery, []byte("not DER"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.CodeInvalidRequest, decodeError(t, rec).Code)
}

func TestU_TSP_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, true)

	rec := do(env.tsp, http.MethodPost, "/", handler.MediaTypeTimeStampQuery, make([]byte, 65<<10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// =============================================================================
// REST API
// =============================================================================

func TestU_API_SignAndValidate(t *testing.T) {
	env := newTestEnv(t, true)
	reply := env.sign(t, "hello")

	rec := do(env.api, http.MethodPut, "/validate", handler.MediaTypeTimeStampReply, reply)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result domain.TimeStampValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.StatusGranted, result.Status)
	assert.True(t, result.SignedByThisTSA)
	assert.Equal(t, int64(7), result.Nonce.Int64())
	assert.Equal(t, domain.SHA256.Sum([]byte("hello")), result.Hash)
}

func TestU_API_ValidateMalformed(t *testing.T) {
	env := newTestEnv(t, true)

	rec := do(env.api, http.MethodPut, "/validate", handler.MediaTypeTimeStampReply, []byte{0x30, 0x01})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.CodeInvalidResponse, decodeError(t, rec).Code)

	rec = do(env.api, http.MethodPut, "/validate", "application/json", []byte("{}"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	unknownStatus, err := asn1.Marshal(tsp.TimeStampResp{Status: tsp.PKIStatusInfo{Status: 9}})
	require.NoError(t, err)
	rec = do(env.api, http.MethodPut, "/validate", handler.MediaTypeTimeStampReply, unknownStatus)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.CodeInvalidResponse, decodeError(t, rec).Code)
}

func multipartBody(t *testing.T, parts map[string][]byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range parts {
		fw, err := mw.CreateFormFile(name, name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), buf.Bytes()
}

func TestU_API_ValidateWithCertificate(t *testing.T) {
	env := newTestEnv(t, true)
	reply := env.sign(t, "hello")
	other := testutil.NewECCredential(t)

	tests := []struct {
		name   string
		cert   []byte
		signed bool
	}{
		{"own certificate DER", env.cred.Certificate.Raw, true},
		{"own certificate PEM", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: env.cred.Certificate.Raw}), true},
		{"other certificate", other.Certificate.Raw, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contentType, body := multipartBody(t, map[string][]byte{
				handler.PartResponse:    reply,
				handler.PartCertificate: tt.cert,
			})
			rec := do(env.api, http.MethodPut, "/validate-with-certificate", contentType, body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var result domain.TimeStampValidationResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tt.signed, result.SignedByThisTSA)
		})
	}
}

func TestU_API_ValidateWithCertificateErrors(t *testing.T) {
	env := newTestEnv(t, true)
	reply := env.sign(t, "hello")

	t.Run("missing certificate part", func(t *testing.T) {
		contentType, body := multipartBody(t, map[string][]byte{handler.PartResponse: reply})
		rec := do(env.api, http.MethodPut, "/validate-with-certificate", contentType, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		apiErr := decodeError(t, rec)
		assert.Equal(t, apierrors.CodeMissingPart, apiErr.Code)
		assert.Equal(t, handler.PartCertificate, apiErr.Details["part"])
	})

	t.Run("invalid certificate", func(t *testing.T) {
		contentType, body := multipartBody(t, map[string][]byte{
			handler.PartResponse:    reply,
			handler.PartCertificate: []byte("garbage"),
		})
		rec := do(env.api, http.MethodPut, "/validate-with-certificate", contentType, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, apierrors.CodeInvalidCertificate, decodeError(t, rec).Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := do(env.api, http.MethodPut, "/validate-with-certificate", handler.MediaTypeTimeStampReply, reply)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})
}

func TestU_API_Certificate(t *testing.T) {
	env := newTestEnv(t, true)

	rec := do(env.api, http.MethodGet, "/certificate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info domain.SigningCertificateInformation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, env.cred.Certificate.Issuer.String(), info.Issuer)
	assert.Equal(t, 0, env.cred.Certificate.SerialNumber.Cmp(info.SerialNumber))
	assert.True(t, env.cred.Certificate.NotAfter.Equal(info.ExpirationDate))
}

func TestU_API_NotInitialized(t *testing.T) {
	env := newTestEnv(t, false)

	rec := do(env.api, http.MethodPost, "/sign", handler.MediaTypeTimeStampQuery, timeStampQuery(t, "x"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, apierrors.CodeNotInitialized, decodeError(t, rec).Code)

	rec = do(env.api, http.MethodGet, "/certificate", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(env.api, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var ready dto.ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.False(t, ready.Ready)
	assert.Equal(t, map[string]bool{"authority": false, "validator": false}, ready.Checks)
}

func TestU_API_HealthAndReady(t *testing.T) {
	env := newTestEnv(t, true)

	rec := do(env.api, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health dto.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)

	rec = do(env.api, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestU_API_Metrics(t *testing.T) {
	env := newTestEnv(t, true)
	env.sign(t, "hello")

	rec := do(env.api, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `qtsa_requests_total{operation="sign",outcome="success"} 1`)
	assert.Contains(t, body, `qtsa_responses_total{status="GRANTED"} 1`)
}

func TestU_API_AuditTrail(t *testing.T) {
	env := newTestEnv(t, true)
	reply := env.sign(t, "hello")
	do(env.api, http.MethodPut, "/validate", handler.MediaTypeTimeStampReply, reply)

	req := httptest.NewRequest(http.MethodPost, "/sign", bytes.NewReader(timeStampQuery(t, "again")))
	req.Header.Set("Content-Type", handler.MediaTypeTimeStampQuery)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	env.api.ServeHTTP(httptest.NewRecorder(), req)

	require.NoError(t, env.audit.Close())
	count, err := audit.VerifyChainFile(env.audit.Path())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestU_API_RateLimit(t *testing.T) {
	cfg := &Config{
		Version:   "test",
		Service:   service.NewTSAService(nil, nil),
		Logger:    quietLogger(),
		RateLimit: 1,
		RateBurst: 1,
	}
	api := NewAPI(cfg)

	first := do(api, http.MethodGet, "/health", "", nil)
	second := do(api, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestU_API_UnknownRoute(t *testing.T) {
	env := newTestEnv(t, true)

	rec := do(env.api, http.MethodGet, "/api/v1/ca", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}
