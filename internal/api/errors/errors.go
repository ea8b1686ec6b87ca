// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"errors"
	"net/http"

	"github.com/remiblancher/qtsa/internal/api/dto"
	"github.com/remiblancher/qtsa/internal/tsa"
	"github.com/remiblancher/qtsa/internal/tsp"
)

// Error codes for API responses.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidResponse      = "INVALID_RESPONSE"
	CodeUnknownHashAlgorithm = "UNKNOWN_HASH_ALGORITHM"
	CodeRFCViolation         = "RFC_VIOLATION"
	CodeInvalidCertificate   = "INVALID_CERTIFICATE"
	CodeNotInitialized       = "NOT_INITIALIZED"
	CodeResponseGeneration   = "RESPONSE_GENERATION_FAILED"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeMissingPart          = "MISSING_PART"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeInternal             = "INTERNAL_ERROR"
)

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, &dto.APIError{
			Code:    CodePayloadTooLarge,
			Message: err.Error(),
		}
	// ErrRFCViolation also matches ErrInvalidResponse, so it goes first.
	case errors.Is(err, tsa.ErrRFCViolation):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeRFCViolation,
			Message: err.Error(),
		}
	case errors.Is(err, tsp.ErrInvalidRequest):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeInvalidRequest,
			Message: err.Error(),
		}
	case errors.Is(err, tsp.ErrInvalidResponse):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeInvalidResponse,
			Message: err.Error(),
		}
	case errors.Is(err, tsa.ErrUnknownHashAlgorithm):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeUnknownHashAlgorithm,
			Message: err.Error(),
		}
	case errors.Is(err, tsa.ErrInvalidCertificate):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeInvalidCertificate,
			Message: err.Error(),
		}
	case errors.Is(err, tsa.ErrNotInitialized):
		return http.StatusServiceUnavailable, &dto.APIError{
			Code:    CodeNotInitialized,
			Message: err.Error(),
		}
	case errors.Is(err, tsa.ErrResponseGeneration), errors.Is(err, tsa.ErrDigestUnavailable):
		// Signing internals are not echoed to clients.
		return http.StatusInternalServerError, &dto.APIError{
			Code:    CodeResponseGeneration,
			Message: "The time-stamp response could not be generated",
		}
	}

	// Default internal error
	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

// NewMissingPart reports an absent multipart form part.
func NewMissingPart(name string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeMissingPart,
		Message: "multipart part " + name + " is required",
		Details: map[string]string{"part": name},
	}
}

// NewUnsupportedMediaType reports a body whose Content-Type is not accepted.
func NewUnsupportedMediaType(got, want string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeUnsupportedMediaType,
		Message: "expected Content-Type " + want,
		Details: map[string]string{"content_type": got},
	}
}
