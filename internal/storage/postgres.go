package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	// Set pool configuration
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", classifyPgError(err))
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return classifyPgError(r.pool.Ping(ctx))
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateSession creates a new session record
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, assessment_id, status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.AssessmentID,
		string(s.Status),
		s.StartedAt,
		nullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", classifyPgError(err))
	}

	return nil
}

const sessionColumns = `id, user_id, assessment_id, status, started_at, completed_at`

// GetSession retrieves a session by ID
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", classifyPgError(err))
	}
	return s, nil
}

// ListSessions returns sessions with optional filters, newest first
func (r *PostgresRepository) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	args := make([]interface{}, 0)
	argNum := 1

	if filters.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argNum)
		args = append(args, filters.UserID)
		argNum++
	}

	if filters.AssessmentID != "" {
		query += fmt.Sprintf(" AND assessment_id = $%d", argNum)
		args = append(args, filters.AssessmentID)
		argNum++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}

	// Newest first; id breaks ties for stable paging
	query += " ORDER BY started_at DESC, id"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", classifyPgError(err))
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, classifyPgError(rows.Err())
}

// UpsertResponse stores a response while holding a shared lock on the session row
func (r *PostgresRepository) UpsertResponse(ctx context.Context, resp *models.Response) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyPgError(err))
	}
	defer tx.Rollback(ctx)

	// Lock session row so completion cannot run concurrently
	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1 FOR SHARE`, resp.SessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to lock session: %w", classifyPgError(err))
	}
	if models.SessionStatus(status) != models.SessionOpen {
		return ErrSessionClosed
	}

	query := `
		INSERT INTO responses (session_id, question_id, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, question_id)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.Exec(ctx, query, resp.SessionID, resp.QuestionID, resp.Value, resp.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert response: %w", classifyPgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit response: %w", classifyPgError(err))
	}
	return nil
}

// ListResponses returns the responses of a session ordered by question id
func (r *PostgresRepository) ListResponses(ctx context.Context, sessionID string) ([]*models.Response, error) {
	return listResponses(ctx, r.pool, sessionID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listResponses(ctx context.Context, q querier, sessionID string) ([]*models.Response, error) {
	query := `
		SELECT session_id, question_id, value, updated_at
		FROM responses
		WHERE session_id = $1
		ORDER BY question_id
	`

	rows, err := q.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", classifyPgError(err))
	}
	defer rows.Close()

	responses := make([]*models.Response, 0)
	for rows.Next() {
		var resp models.Response
		if err := rows.Scan(&resp.SessionID, &resp.QuestionID, &resp.Value, &resp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		responses = append(responses, &resp)
	}

	return responses, classifyPgError(rows.Err())
}

// CompleteSession locks the session row, builds the result from the responses
// read under the lock, and commits the status change and the result together
func (r *PostgresRepository) CompleteSession(ctx context.Context, id string, completedAt time.Time, build BuildResultFunc) (*models.Session, *models.Result, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", classifyPgError(err))
	}
	defer tx.Rollback(ctx)

	// Lock session row
	s, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to lock session: %w", classifyPgError(err))
	}
	if !s.IsOpen() {
		return nil, nil, ErrSessionClosed
	}

	// Read responses under the lock
	responses, err := listResponses(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	s.Status = models.SessionCompleted
	s.CompletedAt = &completedAt

	// Build result; on error nothing is written
	result, err := build(s, responses)
	if err != nil {
		return nil, nil, err
	}

	// Mark session completed
	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET status = $2, completed_at = $3 WHERE id = $1`,
		id, string(s.Status), completedAt,
	); err != nil {
		return nil, nil, fmt.Errorf("failed to update session: %w", classifyPgError(err))
	}

	// Store result
	cols, err := encodeResult(result)
	if err != nil {
		return nil, nil, err
	}

	query := `
		INSERT INTO results (session_id, assessment_id, user_id, overall_score, domain_scores, summary_tier,
			executive_summary, strengths, growth_areas, recommendations, next_action_interval_days, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, query,
		result.SessionID,
		result.AssessmentID,
		result.UserID,
		result.Overall,
		cols.domainScores,
		string(result.Tier),
		result.Summary,
		cols.strengths,
		cols.growthAreas,
		cols.recommendations,
		result.NextActionInterval,
		result.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, nil, ErrSessionClosed
		}
		return nil, nil, fmt.Errorf("failed to insert result: %w", classifyPgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit completion: %w", classifyPgError(err))
	}

	return s, result, nil
}

// GetResult retrieves the result of a completed session
func (r *PostgresRepository) GetResult(ctx context.Context, sessionID string) (*models.Result, error) {
	query := `
		SELECT session_id, assessment_id, user_id, overall_score, domain_scores, summary_tier,
			executive_summary, strengths, growth_areas, recommendations, next_action_interval_days, created_at
		FROM results
		WHERE session_id = $1
	`

	var res models.Result
	var tier string
	var cols resultColumns

	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&res.SessionID,
		&res.AssessmentID,
		&res.UserID,
		&res.Overall,
		&cols.domainScores,
		&tier,
		&res.Summary,
		&cols.strengths,
		&cols.growthAreas,
		&cols.recommendations,
		&res.NextActionInterval,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get result: %w", classifyPgError(err))
	}

	// Decode JSONB columns
	res.Tier = models.SummaryTier(tier)
	res.CreatedAt = res.CreatedAt.UTC()
	if err := cols.decodeInto(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var status string
	var completedAt sql.NullTime

	if err := row.Scan(&s.ID, &s.UserID, &s.AssessmentID, &status, &s.StartedAt, &completedAt); err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)
	s.StartedAt = s.StartedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		s.CompletedAt = &t
	}
	return &s, nil
}

// classifyPgError marks connection loss, serialization failures, deadlocks,
// shutdowns and pool exhaustion as transient
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001",
			pgErr.Code == "40P01",
			pgErr.Code == "53300",
			pgErr.Code == "57P01",
			pgErr.Code == "57P02",
			pgErr.Code == "57P03":
			return transient(err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return transient(err)
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
