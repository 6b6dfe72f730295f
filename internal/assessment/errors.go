package assessment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/terra-clan/assessment-engine/internal/storage"
)

// Error categories. Every error returned by Engine matches at most one of
// them with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrIncomplete           = errors.New("assessment incomplete")
	ErrConflict             = errors.New("conflict")
	ErrPersistenceTransient = errors.New("persistence temporarily unavailable")
)

// Specific errors
var (
	ErrAssessmentNotFound = fmt.Errorf("assessment %w", ErrNotFound)
	ErrSessionNotFound    = fmt.Errorf("session %w", ErrNotFound)
	ErrQuestionNotFound   = fmt.Errorf("question %w", ErrNotFound)
	ErrResultNotFound     = fmt.Errorf("result %w", ErrNotFound)

	ErrSessionClosed    = fmt.Errorf("%w: session is not open", ErrConflict)
	ErrAlreadyCompleted = fmt.Errorf("%w: session already completed", ErrConflict)
)

// ValidationError reports a malformed argument or a rejected answer
type ValidationError struct {
	Field  string // question id for answers
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IncompleteError lists the questions that still need an answer
type IncompleteError struct {
	SessionID string
	Missing   []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("session %s is missing answers for: %s", e.SessionID, strings.Join(e.Missing, ", "))
}

func (e *IncompleteError) Unwrap() error {
	return ErrIncomplete
}

// fromStorage maps repository errors onto the engine's categories
func fromStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, storage.ErrSessionClosed):
		return ErrSessionClosed
	case storage.IsTransient(err):
		return fmt.Errorf("%w: %w", ErrPersistenceTransient, err)
	}
	return err
}
