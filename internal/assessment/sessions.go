package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// OpenSession starts a new session of an assessment for a user
func (e *Engine) OpenSession(ctx context.Context, assessmentID, userID string) (*models.Session, error) {
	if strings.TrimSpace(assessmentID) == "" {
		return nil, &ValidationError{Field: "assessment_id", Reason: "is required"}
	}
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "is required"}
	}

	a, err := e.catalog.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	if a == nil {
		return nil, ErrAssessmentNotFound
	}

	s := &models.Session{
		ID:           e.newID(),
		UserID:       userID,
		AssessmentID: a.ID,
		Status:       models.SessionOpen,
		StartedAt:    e.now(),
	}

	if err := e.repo.CreateSession(ctx, s); err != nil {
		return nil, fromStorage(err)
	}

	slog.Info("session opened",
		"session_id", s.ID,
		"assessment", s.AssessmentID,
		"user", s.UserID,
	)
	return s, nil
}

// GetSession retrieves a session by ID
func (e *Engine) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s, err := e.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fromStorage(err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ListSessions returns sessions matching the filters, newest first
func (e *Engine) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	if filters.Limit < 0 || filters.Offset < 0 {
		return nil, &ValidationError{Field: "limit", Reason: "limit and offset must not be negative"}
	}
	if filters.Status != "" && filters.Status != models.SessionOpen && filters.Status != models.SessionCompleted {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", filters.Status)}
	}

	sessions, err := e.repo.ListSessions(ctx, filters)
	if err != nil {
		return nil, fromStorage(err)
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return sessions, nil
}

// questions returns the ordered questions of the session's assessment
func (e *Engine) questions(ctx context.Context, s *models.Session) ([]*models.Question, error) {
	questions, err := e.catalog.ListQuestions(ctx, s.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	if questions == nil {
		return nil, ErrAssessmentNotFound
	}
	return questions, nil
}
