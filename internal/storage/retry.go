package storage

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// RetryConfig controls the backoff of RetryRepository
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// RetryRepository is a decorator that retries ErrTransient failures with
// exponential backoff and jitter. Every other error is returned as is.
type RetryRepository struct {
	inner  Repository
	config RetryConfig
}

// WithRetry wraps a Repository with retry logic
func WithRetry(repo Repository, cfg RetryConfig) *RetryRepository {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &RetryRepository{inner: repo, config: cfg}
}

func retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !IsTransient(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}

		// Last attempt: don't sleep, just return the error.
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := backoff(cfg, attempt)
		slog.Warn("transient persistence failure, retrying",
			"op", op,
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}

	return zero, lastErr
}

// backoff computes the wait duration for the given attempt
func backoff(cfg RetryConfig, attempt int) time.Duration {
	wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxWait > 0 && wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}

	// Add ±20% jitter.
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

func (r *RetryRepository) do(ctx context.Context, op string, fn func() error) error {
	_, err := retry(ctx, r.config, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Unwrap returns the decorated repository
func (r *RetryRepository) Unwrap() Repository {
	return r.inner
}

func (r *RetryRepository) CreateSession(ctx context.Context, s *models.Session) error {
	return r.do(ctx, "create_session", func() error {
		return r.inner.CreateSession(ctx, s)
	})
}

func (r *RetryRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return retry(ctx, r.config, "get_session", func() (*models.Session, error) {
		return r.inner.GetSession(ctx, id)
	})
}

func (r *RetryRepository) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	return retry(ctx, r.config, "list_sessions", func() ([]*models.Session, error) {
		return r.inner.ListSessions(ctx, filters)
	})
}

func (r *RetryRepository) UpsertResponse(ctx context.Context, resp *models.Response) error {
	return r.do(ctx, "upsert_response", func() error {
		return r.inner.UpsertResponse(ctx, resp)
	})
}

func (r *RetryRepository) ListResponses(ctx context.Context, sessionID string) ([]*models.Response, error) {
	return retry(ctx, r.config, "list_responses", func() ([]*models.Response, error) {
		return r.inner.ListResponses(ctx, sessionID)
	})
}

// CompleteSession retries the whole transaction. When a commit outcome is
// unknown, the retry may observe the session as already completed.
func (r *RetryRepository) CompleteSession(ctx context.Context, id string, completedAt time.Time, build BuildResultFunc) (*models.Session, *models.Result, error) {
	type completion struct {
		session *models.Session
		result  *models.Result
	}

	c, err := retry(ctx, r.config, "complete_session", func() (completion, error) {
		s, res, err := r.inner.CompleteSession(ctx, id, completedAt, build)
		return completion{s, res}, err
	})
	return c.session, c.result, err
}

func (r *RetryRepository) GetResult(ctx context.Context, sessionID string) (*models.Result, error) {
	return retry(ctx, r.config, "get_result", func() (*models.Result, error) {
		return r.inner.GetResult(ctx, sessionID)
	})
}

func (r *RetryRepository) Ping(ctx context.Context) error {
	return r.inner.Ping(ctx)
}

func (r *RetryRepository) Close() error {
	return r.inner.Close()
}
