package storage

import (
	"context"
	"time"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// BuildResultFunc computes the result of a session from its final responses.
// It runs inside CompleteSession while the session is locked; returning an
// error aborts the completion and leaves the session open.
type BuildResultFunc func(session *models.Session, responses []*models.Response) (*models.Result, error)

// Repository defines the interface for assessment persistence.
// Lookups of missing records return (nil, nil).
type Repository interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error)

	// Responses. UpsertResponse fails with ErrSessionNotFound or
	// ErrSessionClosed and is atomic with respect to CompleteSession.
	UpsertResponse(ctx context.Context, r *models.Response) error
	ListResponses(ctx context.Context, sessionID string) ([]*models.Response, error)

	// CompleteSession atomically moves an open session to completed and stores
	// the result produced by build. Only one caller can win the transition;
	// the others get ErrSessionClosed.
	CompleteSession(ctx context.Context, id string, completedAt time.Time, build BuildResultFunc) (*models.Session, *models.Result, error)
	GetResult(ctx context.Context, sessionID string) (*models.Result, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
