package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/assessment-engine/internal/assessment"
)

const maxBodyBytes = 1 << 20

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondEngineError maps an engine error category onto an HTTP status
func respondEngineError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		validation *assessment.ValidationError
		incomplete *assessment.IncompleteError
	)

	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, "validation_error", validation.Error(),
			map[string]string{"field": validation.Field})
	case errors.Is(err, assessment.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, assessment.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &incomplete):
		respondError(w, http.StatusConflict, "incomplete", incomplete.Error(),
			map[string][]string{"missing": incomplete.Missing})
	case errors.Is(err, assessment.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, assessment.ErrPersistenceTransient):
		slog.Warn("persistence unavailable", "error", err, "action", action,
			"request_id", requestID(r))
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable, retry later", nil)
	default:
		slog.Error("request failed", "error", err, "action", action,
			"request_id", requestID(r))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action, nil)
	}
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return false
	}
	return true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ready",
		"assessments": s.catalog.Count(),
	})
}
