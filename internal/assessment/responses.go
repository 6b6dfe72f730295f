package assessment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/scoring"
)

// RecordResponse validates a raw answer and stores it, replacing any earlier
// answer to the same question
func (e *Engine) RecordResponse(ctx context.Context, sessionID, questionID, raw string) error {
	s, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.IsOpen() {
		return ErrSessionClosed
	}

	questions, err := e.questions(ctx, s)
	if err != nil {
		return err
	}

	var question *models.Question
	for _, q := range questions {
		if q.ID == questionID {
			question = q
			break
		}
	}
	if question == nil {
		return ErrQuestionNotFound
	}

	if err := e.scorer.Registry().Validate(question, raw); err != nil {
		var invalid *scoring.InvalidValueError
		if errors.As(err, &invalid) {
			return &ValidationError{Field: question.ID, Reason: invalid.Reason}
		}
		return err
	}

	resp := &models.Response{
		SessionID:  s.ID,
		QuestionID: question.ID,
		Value:      raw,
		UpdatedAt:  e.now(),
	}
	if err := e.repo.UpsertResponse(ctx, resp); err != nil {
		return fromStorage(err)
	}

	slog.Debug("response recorded", "session_id", s.ID, "question", question.ID)
	return nil
}

// Progress reports how many questions are answered and which are still missing
func (e *Engine) Progress(ctx context.Context, sessionID string) (*models.Progress, error) {
	s, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.progress(ctx, s)
}

func (e *Engine) progress(ctx context.Context, s *models.Session) (*models.Progress, error) {
	questions, err := e.questions(ctx, s)
	if err != nil {
		return nil, err
	}

	responses, err := e.repo.ListResponses(ctx, s.ID)
	if err != nil {
		return nil, fromStorage(err)
	}

	answered := make(map[string]struct{}, len(responses))
	for _, r := range responses {
		answered[r.QuestionID] = struct{}{}
	}

	p := &models.Progress{
		SessionID: s.ID,
		Total:     len(questions),
		Missing:   []string{},
	}
	for _, q := range questions {
		if _, ok := answered[q.ID]; ok {
			p.Answered++
		} else {
			p.Missing = append(p.Missing, q.ID)
		}
	}
	p.Complete = len(p.Missing) == 0
	return p, nil
}

// IsComplete reports whether every question of the session has an answer
func (e *Engine) IsComplete(ctx context.Context, sessionID string) (bool, error) {
	p, err := e.Progress(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return p.Complete, nil
}
