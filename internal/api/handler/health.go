// Package handler provides HTTP handlers for the TSP listener and the REST
// API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/remiblancher/qtsa/internal/api/dto"
	apierrors "github.com/remiblancher/qtsa/internal/api/errors"
)

// ReadinessChecker reports named readiness checks.
type ReadinessChecker interface {
	Checks() map[string]bool
}

// HealthHandler handles health and readiness endpoints.
type HealthHandler struct {
	version string
	checker ReadinessChecker
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(version string, checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version: version,
		checker: checker,
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready handles GET /ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := h.checker.Checks()

	allReady := true
	for _, ready := range checks {
		if !ready {
			allReady = false
			break
		}
	}

	resp := dto.ReadyResponse{
		Ready:  allReady,
		Checks: checks,
	}

	status := http.StatusOK
	if !allReady {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, resp)
}

// respondJSON writes a JSON response. The body is encoded before the
// header is sent, so an encoding failure still yields a 500.
func respondJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(&dto.APIError{
			Code:    apierrors.CodeInternal,
			Message: "failed to encode response",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, apiErr *dto.APIError) {
	respondJSON(w, status, apiErr)
}

// handleServiceError maps err onto a status code and an error body.
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := apierrors.MapError(err)
	respondError(w, status, apiErr)
}
