package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/assessment-engine/internal/assessment"
	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/report"
)

const defaultListLimit = 50

// Session handlers. Every session is scoped to the authenticated user;
// another user's session is reported as not found.

func (s *Server) handleStartAssessment(w http.ResponseWriter, r *http.Request) {
	session, err := s.engine.OpenSession(r.Context(), chi.URLParam(r, "id"), UserFromContext(r.Context()))
	if err != nil {
		respondEngineError(w, r, err, "start assessment")
		return
	}

	respondJSON(w, http.StatusCreated, models.StartSessionResponse{
		SessionID:    session.ID,
		AssessmentID: session.AssessmentID,
		Status:       session.Status,
		StartedAt:    session.StartedAt,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := models.SessionFilters{
		UserID:       UserFromContext(r.Context()),
		AssessmentID: query.Get("assessment_id"),
		Status:       models.SessionStatus(query.Get("status")),
		Limit:        defaultListLimit,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer", nil)
			return
		}
		filters.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "offset must be a non-negative integer", nil)
			return
		}
		filters.Offset = offset
	}

	sessions, err := s.engine.ListSessions(r.Context(), filters)
	if err != nil {
		respondEngineError(w, r, err, "list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	var req models.AnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		respondError(w, http.StatusBadRequest, "validation_error", "value is required",
			map[string]string{"field": "value"})
		return
	}

	questionID := chi.URLParam(r, "questionId")
	if err := s.engine.RecordResponse(r.Context(), session.ID, questionID, *req.Value); err != nil {
		respondEngineError(w, r, err, "record answer")
		return
	}

	progress, err := s.engine.Progress(r.Context(), session.ID)
	if err != nil {
		respondEngineError(w, r, err, "get progress")
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	progress, err := s.engine.Progress(r.Context(), session.ID)
	if err != nil {
		respondEngineError(w, r, err, "get progress")
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	result, err := s.engine.SubmitAssessment(r.Context(), session.ID)
	if err != nil {
		respondEngineError(w, r, err, "submit assessment")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	session, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	formatParam := r.URL.Query().Get("format")
	var format report.Format
	if formatParam != "" {
		f, err := report.ParseFormat(formatParam)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error(),
				map[string]string{"field": "format"})
			return
		}
		format = f
	}

	result, err := s.engine.GetReport(r.Context(), session.ID)
	if err != nil {
		respondEngineError(w, r, err, "get report")
		return
	}

	if formatParam == "" {
		respondJSON(w, http.StatusOK, result)
		return
	}

	doc := report.Document{AssessmentName: result.AssessmentID, Result: result}
	if a := s.catalog.Get(result.AssessmentID); a != nil {
		doc.AssessmentName = a.Name
	}

	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, format, doc); err != nil {
		slog.Error("failed to render report", "error", err, "session", session.ID, "format", format)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to render report", nil)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format == report.FormatPDF {
		w.Header().Set("Content-Disposition", `attachment; filename="report-`+session.ID+`.pdf"`)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed to write report", "error", err, "session", session.ID)
	}
}

// ownedSession loads the session named in the URL and checks it belongs
// to the caller. It writes the error response itself when it returns false.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	session, err := s.engine.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err, "get session")
		return nil, false
	}
	if session.UserID != UserFromContext(r.Context()) {
		respondEngineError(w, r, assessment.ErrSessionNotFound, "get session")
		return nil, false
	}
	return session, true
}
