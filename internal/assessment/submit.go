package assessment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/scoring"
	"github.com/terra-clan/assessment-engine/internal/storage"
)

// CompleteSession closes a fully answered session. Scoring and report
// synthesis run in the same atomic step, so a completed session always has
// exactly one result. It fails with ErrNotFound, then ErrConflict for a
// session that is no longer open, then ErrIncomplete.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s, _, err := e.complete(ctx, sessionID)
	return s, err
}

// SubmitAssessment completes the session and returns its result
func (e *Engine) SubmitAssessment(ctx context.Context, sessionID string) (*models.Result, error) {
	_, res, err := e.complete(ctx, sessionID)
	return res, err
}

func (e *Engine) complete(ctx context.Context, sessionID string) (*models.Session, *models.Result, error) {
	s, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !s.IsOpen() {
		return nil, nil, ErrAlreadyCompleted
	}

	p, err := e.progress(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	if !p.Complete {
		return nil, nil, &IncompleteError{SessionID: s.ID, Missing: p.Missing}
	}

	questions, err := e.questions(ctx, s)
	if err != nil {
		return nil, nil, err
	}

	build := func(locked *models.Session, responses []*models.Response) (*models.Result, error) {
		return e.buildResult(locked, questions, responses)
	}

	completed, res, err := e.repo.CompleteSession(ctx, s.ID, e.now(), build)
	if err != nil {
		if errors.Is(err, storage.ErrSessionClosed) {
			return nil, nil, ErrAlreadyCompleted
		}
		return nil, nil, fromStorage(err)
	}

	slog.Info("session completed",
		"session_id", completed.ID,
		"assessment", completed.AssessmentID,
		"overall", res.Overall,
		"tier", res.Tier,
	)
	return completed, res, nil
}

// buildResult scores the final responses and synthesizes the report
func (e *Engine) buildResult(s *models.Session, questions []*models.Question, responses []*models.Response) (*models.Result, error) {
	scores, err := e.scorer.Compute(questions, responses)
	if err != nil {
		var missing *scoring.MissingResponsesError
		if errors.As(err, &missing) {
			return nil, &IncompleteError{SessionID: s.ID, Missing: missing.Missing}
		}
		return nil, err
	}

	createdAt := e.now()
	if s.CompletedAt != nil {
		createdAt = *s.CompletedAt
	}

	return &models.Result{
		SessionID:    s.ID,
		AssessmentID: s.AssessmentID,
		UserID:       s.UserID,
		Overall:      scores.Overall,
		ByDomain:     scores.ByDomain,
		Report:       e.synthesizer.Synthesize(scores.Overall, scores.ByDomain),
		CreatedAt:    createdAt,
	}, nil
}

// GetReport returns the stored result of a completed session
func (e *Engine) GetReport(ctx context.Context, sessionID string) (*models.Result, error) {
	s, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	res, err := e.repo.GetResult(ctx, s.ID)
	if err != nil {
		return nil, fromStorage(err)
	}
	if res == nil {
		return nil, ErrResultNotFound
	}
	return res, nil
}
