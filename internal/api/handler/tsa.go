package handler

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	apierrors "github.com/remiblancher/qtsa/internal/api/errors"
	"github.com/remiblancher/qtsa/internal/domain"
)

// Media types of RFC 3161 Section 3.4.
const (
	MediaTypeTimeStampQuery = "application/timestamp-query"
	MediaTypeTimeStampReply = "application/timestamp-reply"
)

// Multipart part names of PUT /validate-with-certificate.
const (
	PartResponse    = "response"
	PartCertificate = "x509Certificate"
)

// TSAService is what the handlers need from the service layer.
type TSAService interface {
	Sign(ctx context.Context, request []byte) (*domain.TimeStampResponseData, error)
	Validate(ctx context.Context, response []byte) (*domain.TimeStampValidationResult, error)
	ValidateWithCertificate(ctx context.Context, response, certificate []byte) (*domain.TimeStampValidationResult, error)
	Certificate() (*domain.SigningCertificateInformation, error)
}

// TSAHandler handles time-stamp HTTP requests.
type TSAHandler struct {
	service TSAService
}

// NewTSAHandler creates a new TSAHandler.
func NewTSAHandler(service TSAService) *TSAHandler {
	return &TSAHandler{service: service}
}

// Query handles the RFC 3161 TSP endpoint. Anything but a POST of
// application/timestamp-query is refused with 415.
func (h *TSAHandler) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusUnsupportedMediaType, apierrors.NewUnsupportedMediaType(r.Header.Get("Content-Type"), MediaTypeTimeStampQuery))
		return
	}
	h.Sign(w, r)
}

// Sign handles POST /sign.
func (h *TSAHandler) Sign(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, MediaTypeTimeStampQuery)
	if !ok {
		return
	}

	resp, err := h.service.Sign(r.Context(), body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", MediaTypeTimeStampReply)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.ASNEncoded)
}

// Validate handles PUT /validate.
func (h *TSAHandler) Validate(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r, MediaTypeTimeStampReply)
	if !ok {
		return
	}

	result, err := h.service.Validate(r.Context(), body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ValidateWithCertificate handles PUT /validate-with-certificate.
func (h *TSAHandler) ValidateWithCertificate(w http.ResponseWriter, r *http.Request) {
	if mediaType(r) != "multipart/form-data" {
		respondError(w, http.StatusUnsupportedMediaType, apierrors.NewUnsupportedMediaType(r.Header.Get("Content-Type"), "multipart/form-data"))
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		if status, apiErr := apierrors.MapError(err); status == http.StatusRequestEntityTooLarge {
			respondError(w, status, apiErr)
			return
		}
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid multipart form: "+err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	response, ok := formPart(w, r.MultipartForm, PartResponse)
	if !ok {
		return
	}
	certificate, ok := formPart(w, r.MultipartForm, PartCertificate)
	if !ok {
		return
	}

	result, err := h.service.ValidateWithCertificate(r.Context(), response, certificate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Certificate handles GET /certificate.
func (h *TSAHandler) Certificate(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Certificate()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// readBody checks the Content-Type and reads the whole body. It writes the
// error response itself and reports whether the caller may continue.
func readBody(w http.ResponseWriter, r *http.Request, want string) ([]byte, bool) {
	if mediaType(r) != want {
		respondError(w, http.StatusUnsupportedMediaType, apierrors.NewUnsupportedMediaType(r.Header.Get("Content-Type"), want))
		return nil, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if status, apiErr := apierrors.MapError(err); status == http.StatusRequestEntityTooLarge {
			respondError(w, status, apiErr)
			return nil, false
		}
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Cannot read request body"))
		return nil, false
	}
	return body, true
}

// formPart reads a file part, falling back to a plain form value.
func formPart(w http.ResponseWriter, form *multipart.Form, name string) ([]byte, bool) {
	if files := form.File[name]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Cannot read part "+name))
			return nil, false
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Cannot read part "+name))
			return nil, false
		}
		return data, true
	}
	if values := form.Value[name]; len(values) > 0 && values[0] != "" {
		return []byte(values[0]), true
	}
	respondError(w, http.StatusBadRequest, apierrors.NewMissingPart(name))
	return nil, false
}
