package assessment

import (
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/assessment-engine/internal/catalog"
	"github.com/terra-clan/assessment-engine/internal/report"
	"github.com/terra-clan/assessment-engine/internal/scoring"
	"github.com/terra-clan/assessment-engine/internal/storage"
)

// Engine runs assessment sessions: it opens them, collects answers and,
// on submission, scores the session and stores its report exactly once.
type Engine struct {
	catalog     catalog.Catalog
	repo        storage.Repository
	scorer      *scoring.Engine
	synthesizer *report.Synthesizer

	now   func() time.Time
	newID func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides session id generation
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates a new assessment engine
func NewEngine(cat catalog.Catalog, repo storage.Repository, scorer *scoring.Engine, synthesizer *report.Synthesizer, opts ...Option) *Engine {
	e := &Engine{
		catalog:     cat,
		repo:        repo,
		scorer:      scorer,
		synthesizer: synthesizer,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
