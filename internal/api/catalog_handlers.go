package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Catalog handlers

func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	assessments := s.catalog.List()
	summaries := make([]models.AssessmentSummary, 0, len(assessments))
	for _, a := range assessments {
		if category != "" && a.Category != category {
			continue
		}
		summaries = append(summaries, a.Summary())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assessments": summaries,
		"total":       len(summaries),
	})
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a := s.catalog.Get(chi.URLParam(r, "id"))
	if a == nil {
		respondError(w, http.StatusNotFound, "not_found", "assessment not found", nil)
		return
	}
	view := *a
	view.Questions = a.OrderedQuestions()
	respondJSON(w, http.StatusOK, &view)
}
