package scoring

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Common errors
var (
	ErrInvalidValue = errors.New("invalid response value")
	ErrUnknownType  = errors.New("unknown question type")
)

// InvalidValueError describes why a raw value was rejected for a question
type InvalidValueError struct {
	QuestionID string
	Value      string
	Reason     string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("question %s: value %q rejected: %s", e.QuestionID, e.Value, e.Reason)
}

func (e *InvalidValueError) Unwrap() error {
	return ErrInvalidValue
}

// Strategy validates and scores raw answers for one question type.
// Score is only called with values that passed Validate and must return
// a value in [0, ceiling].
type Strategy interface {
	Validate(q *models.Question, raw string) error
	Score(q *models.Question, raw string, ceiling float64) (float64, error)
}

func invalid(q *models.Question, raw, reason string) error {
	return &InvalidValueError{QuestionID: q.ID, Value: raw, Reason: reason}
}

// ScaleStrategy accepts integers within the question's inclusive bounds and
// maps them proportionally so that the question's max lands on the ceiling.
type ScaleStrategy struct{}

func (ScaleStrategy) parse(q *models.Question, raw string) (int, error) {
	if q.Scale == nil {
		return 0, invalid(q, raw, "question has no scale bounds")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(q, raw, "not an integer")
	}
	if v < q.Scale.Min || v > q.Scale.Max {
		return 0, invalid(q, raw, fmt.Sprintf("outside scale %d..%d", q.Scale.Min, q.Scale.Max))
	}
	return v, nil
}

func (s ScaleStrategy) Validate(q *models.Question, raw string) error {
	_, err := s.parse(q, raw)
	return err
}

func (s ScaleStrategy) Score(q *models.Question, raw string, ceiling float64) (float64, error) {
	v, err := s.parse(q, raw)
	if err != nil {
		return 0, err
	}
	if q.Scale.Max <= 0 {
		return 0, invalid(q, raw, "scale maximum must be positive")
	}
	return clamp(float64(v)*ceiling/float64(q.Scale.Max), 0, ceiling), nil
}

// ChoiceStrategy accepts one of the declared option values and maps the
// option's index onto 0..ceiling.
type ChoiceStrategy struct{}

func (ChoiceStrategy) Validate(q *models.Question, raw string) error {
	if q.ChoiceIndex(raw) < 0 {
		return invalid(q, raw, "not one of the declared choices")
	}
	return nil
}

func (ChoiceStrategy) Score(q *models.Question, raw string, ceiling float64) (float64, error) {
	idx := q.ChoiceIndex(raw)
	if idx < 0 {
		return 0, invalid(q, raw, "not one of the declared choices")
	}
	// A single-choice question carries no signal.
	if len(q.Choices) < 2 {
		return 0, nil
	}
	return float64(idx) / float64(len(q.Choices)-1) * ceiling, nil
}

// YesNoStrategy accepts exactly two canonical tokens
type YesNoStrategy struct {
	Yes string
	No  string
}

func (s YesNoStrategy) Validate(q *models.Question, raw string) error {
	if raw != s.Yes && raw != s.No {
		return invalid(q, raw, fmt.Sprintf("must be %q or %q", s.Yes, s.No))
	}
	return nil
}

func (s YesNoStrategy) Score(q *models.Question, raw string, ceiling float64) (float64, error) {
	if err := s.Validate(q, raw); err != nil {
		return 0, err
	}
	if raw == s.Yes {
		return ceiling, nil
	}
	return 0, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
