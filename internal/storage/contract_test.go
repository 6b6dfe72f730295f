package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// backends returns every repository implementation available to the test run
func backends(t *testing.T) map[string]func(t *testing.T) Repository {
	b := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository {
			return NewMemoryRepository()
		},
		"sqlite": func(t *testing.T) Repository {
			repo, err := NewSQLiteRepository(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })
			return repo
		},
		"sqlite_file": func(t *testing.T) Repository {
			repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "assessment.db"))
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })
			return repo
		},
	}

	if dsn := os.Getenv("TEST_DATABASE_DSN"); dsn != "" {
		b["postgres"] = func(t *testing.T) Repository {
			ctx := context.Background()
			_, err := MigrateFromDSN(ctx, dsn, filepath.Join("..", "..", "migrations"))
			require.NoError(t, err)

			repo, err := NewPostgresRepository(ctx, PostgresConfig{DSN: dsn, MaxOpenConns: 10, MaxIdleConns: 1})
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })
			return repo
		}
	}
	return b
}

func runContract(t *testing.T, test func(t *testing.T, repo Repository)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			test(t, open(t))
		})
	}
}

func newSession(userID, assessmentID string, startedAt time.Time) *models.Session {
	return &models.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		AssessmentID: assessmentID,
		Status:       models.SessionOpen,
		StartedAt:    startedAt.UTC(),
	}
}

func answer(sessionID, questionID, value string) *models.Response {
	return &models.Response{
		SessionID:  sessionID,
		QuestionID: questionID,
		Value:      value,
		UpdatedAt:  time.Now().UTC(),
	}
}

func buildFixed(overall float64) BuildResultFunc {
	return func(s *models.Session, responses []*models.Response) (*models.Result, error) {
		return &models.Result{
			SessionID:    s.ID,
			AssessmentID: s.AssessmentID,
			UserID:       s.UserID,
			Overall:      overall,
			ByDomain:     map[string]float64{"Trust": 20, "Communication": 100},
			Report: models.Report{
				Tier:               models.TierModerate,
				Summary:            "summary",
				Strengths:          []string{"Communication"},
				GrowthAreas:        []string{"Trust"},
				Recommendations:    []string{"Focus on Trust"},
				NextActionInterval: 60,
			},
			CreatedAt: *s.CompletedAt,
		}, nil
	}
}

func TestRepositorySessions(t *testing.T) {
	runContract(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		user := uuid.New().String()
		base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

		first := newSession(user, "team-health", base)
		second := newSession(user, "wellbeing-check", base.Add(time.Hour))
		other := newSession(uuid.New().String(), "team-health", base.Add(2*time.Hour))
		for _, s := range []*models.Session{first, second, other} {
			require.NoError(t, repo.CreateSession(ctx, s))
		}

		got, err := repo.GetSession(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.UserID, got.UserID)
		assert.Equal(t, models.SessionOpen, got.Status)
		assert.True(t, first.StartedAt.Equal(got.StartedAt))
		assert.Nil(t, got.CompletedAt)

		missing, err := repo.GetSession(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, missing)

		list, err := repo.ListSessions(ctx, models.SessionFilters{UserID: user})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)

		list, err = repo.ListSessions(ctx, models.SessionFilters{UserID: user, AssessmentID: "team-health"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, first.ID, list[0].ID)

		list, err = repo.ListSessions(ctx, models.SessionFilters{UserID: user, Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, first.ID, list[0].ID)

		list, err = repo.ListSessions(ctx, models.SessionFilters{UserID: user, Offset: 5})
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = repo.ListSessions(ctx, models.SessionFilters{UserID: user, Status: models.SessionCompleted})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestRepositoryUpsertIsLastWriteWins(t *testing.T) {
	runContract(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		s := newSession("user", "team-health", time.Now())
		require.NoError(t, repo.CreateSession(ctx, s))

		require.NoError(t, repo.UpsertResponse(ctx, answer(s.ID, "q1", "2")))
		require.NoError(t, repo.UpsertResponse(ctx, answer(s.ID, "q2", "yes")))
		require.NoError(t, repo.UpsertResponse(ctx, answer(s.ID, "q1", "4")))

		responses, err := repo.ListResponses(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, responses, 2)
		assert.Equal(t, "q1", responses[0].QuestionID)
		assert.Equal(t, "4", responses[0].Value)
		assert.Equal(t, "q2", responses[1].QuestionID)

		empty, err := repo.ListResponses(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestRepositoryUpsertRejectsUnknownSession(t *testing.T) {
	runContract(t, func(t *testing.T, repo Repository) {
		err := repo.UpsertResponse(context.Background(), answer(uuid.New().String(), "q1", "1"))
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestRepositoryCompleteSession(t *testing.T) {
	runContract(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		s := newSession("user", "team-health", time.Now())
		require.NoError(t, repo.CreateSession(ctx, s))
		require.NoError(t, repo.UpsertResponse(ctx, answer(s.ID, "q1", "5")))

		completedAt := time.Now().UTC().Truncate(time.Microsecond)
		var seen []*models.Response
		build := func(sess *models.Session, responses []*models.Response) (*models.Result, error) {
			assert.Equal(t, models.SessionCompleted, sess.Status)
			require.NotNil(t, sess.CompletedAt)
			seen = responses
			return buildFixed(60)(sess, responses)
		}

		completed, res, err := repo.CompleteSession(ctx, s.ID, completedAt, build)
		require.NoError(t, err)
		assert.Equal(t, models.SessionCompleted, completed.Status)
		require.NotNil(t, completed.CompletedAt)
		assert.True(t, completedAt.Equal(*completed.CompletedAt))
		require.Len(t, seen, 1)
		assert.Equal(t, 60.0, res.Overall)

		stored, err := repo.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsTerminal())

		got, err := repo.GetResult(ctx, s.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s.ID, got.SessionID)
		assert.Equal(t, 60.0, got.Overall)
		assert.Equal(t, map[string]float64{"Trust": 20, "Communication": 100}, got.ByDomain)
		assert.Equal(t, models.TierModerate, got.Tier)
		assert.Equal(t, []string{"Communication"}, got.Strengths)
		assert.Equal(t, []string{"Trust"}, got.GrowthAreas)
		assert.Equal(t, []string{"Focus on Trust"}, got.Recommendations)
		assert.Equal(t, 60, got.NextActionInterval)
		assert.True(t, completedAt.Equal(got.CreatedAt))

		_, _, err = repo.CompleteSession(ctx, s.ID, time.Now(), buildFixed(10))
		assert.ErrorIs(t, err, ErrSessionClosed)

		err = repo.UpsertResponse(ctx, answer(s.ID, "q1", "1"))
		assert.ErrorIs(t, err, ErrSessionClosed)

		responses, err := repo.ListResponses(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, responses, 1)
		assert.Equal(t, "5", responses[0].Value)

		got, err = repo.GetResult(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 60.0, got.Overall)
	})
}

func TestRepositoryCompleteSessionNotFound(t *testing.T) {
	runContract(t, func(t *testing.T, repo Repository) {
		_, _, err := repo.CompleteSession(context.Background(), uuid.New().String(), time.Now(), buildFixed(0))
		assert.ErrorIs(t, err, ErrSessionNotFound)

		res, err := repo.GetResult(context.Background(), uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestRepositoryFailedBuildLeavesSessionOpen(t *testing.T) {
	runContract(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		s := newSession("user", "team-health", time.Now())
		require.NoError(t, repo.CreateSession(ctx, s))

		errBuild := errors.New("build failed")
		_, _, err := repo.CompleteSession(ctx, s.ID, time.Now(), func(*models.Session, []*models.Response) (*models.Result, error) {
			return nil, errBuild
		})
		assert.ErrorIs(t, err, errBuild)

		stored, err := repo.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsOpen())
		assert.Nil(t, stored.CompletedAt)

		res, err := repo.GetResult(ctx, s.ID)
		require.NoError(t, err)
		assert.Nil(t, res)

		require.NoError(t, repo.UpsertResponse(ctx, answer(s.ID, "q1", "3")))
		_, _, err = repo.CompleteSession(ctx, s.ID, time.Now(), buildFixed(40))
		require.NoError(t, err)
	})
}

func TestRepositoryConcurrentCompletion(t *testing.T) {
	runContract(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		s := newSession("user", "team-health", time.Now())
		require.NoError(t, repo.CreateSession(ctx, s))

		const callers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		var wins, conflicts int
		var unexpected []error

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := repo.CompleteSession(ctx, s.ID, time.Now(), buildFixed(50))

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrSessionClosed):
					conflicts++
				default:
					unexpected = append(unexpected, err)
				}
			}()
		}
		wg.Wait()

		assert.Empty(t, unexpected)
		assert.Equal(t, 1, wins)
		assert.Equal(t, callers-1, conflicts)
	})
}
