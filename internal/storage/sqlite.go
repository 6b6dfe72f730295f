package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/terra-clan/assessment-engine/internal/models"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository implements Repository using an embedded SQLite database
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens the database at dsn and applies the schema.
// ":memory:" gives a private in-memory database.
func NewSQLiteRepository(ctx context.Context, dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", withConnPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// withConnPragmas adds the per-connection pragmas to the DSN so that every
// pooled connection gets them, not only the first one
func withConnPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return classifySQLiteError(r.db.PingContext(ctx))
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// CreateSession creates a new session record
func (r *SQLiteRepository) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, assessment_id, status, started_at, completed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.AssessmentID, string(s.Status), formatTime(s.StartedAt), formatNullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", classifySQLiteError(err))
	}
	return nil
}

// GetSession retrieves a session by ID
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s, err := scanSQLiteSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", classifySQLiteError(err))
	}
	return s, nil
}

// ListSessions returns sessions with optional filters, newest first
func (r *SQLiteRepository) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	args := make([]interface{}, 0)

	if filters.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filters.UserID)
	}
	if filters.AssessmentID != "" {
		query += " AND assessment_id = ?"
		args = append(args, filters.AssessmentID)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filters.Status))
	}

	query += " ORDER BY started_at DESC, id"

	// SQLite only accepts OFFSET after LIMIT; -1 means no limit.
	if filters.Limit > 0 || filters.Offset > 0 {
		limit := -1
		if filters.Limit > 0 {
			limit = filters.Limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filters.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", classifySQLiteError(err))
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, classifySQLiteError(rows.Err())
}

// UpsertResponse stores a response only while the session is open, in a single statement
func (r *SQLiteRepository) UpsertResponse(ctx context.Context, resp *models.Response) error {
	query := `
		INSERT INTO responses (session_id, question_id, value, updated_at)
		SELECT ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ? AND status = 'open')
		ON CONFLICT (session_id, question_id)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	res, err := r.db.ExecContext(ctx, query,
		resp.SessionID, resp.QuestionID, resp.Value, formatTime(resp.UpdatedAt), resp.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert response: %w", classifySQLiteError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to upsert response: %w", err)
	}
	if n > 0 {
		return nil
	}
	return r.missingOrClosed(ctx, r.db, resp.SessionID)
}

type sqliteQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// missingOrClosed tells apart the two reasons a guarded write can match no rows
func (r *SQLiteRepository) missingOrClosed(ctx context.Context, q sqliteQuerier, sessionID string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to get session status: %w", classifySQLiteError(err))
	}
	return ErrSessionClosed
}

// ListResponses returns the responses of a session ordered by question id
func (r *SQLiteRepository) ListResponses(ctx context.Context, sessionID string) ([]*models.Response, error) {
	return listSQLiteResponses(ctx, r.db, sessionID)
}

func listSQLiteResponses(ctx context.Context, q sqliteQuerier, sessionID string) ([]*models.Response, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT session_id, question_id, value, updated_at FROM responses WHERE session_id = ? ORDER BY question_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", classifySQLiteError(err))
	}
	defer rows.Close()

	responses := make([]*models.Response, 0)
	for rows.Next() {
		var resp models.Response
		var updatedAt string
		if err := rows.Scan(&resp.SessionID, &resp.QuestionID, &resp.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		if resp.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		responses = append(responses, &resp)
	}
	return responses, classifySQLiteError(rows.Err())
}

// CompleteSession claims the session with a compare-and-set on its status,
// then builds and stores the result in the same transaction
func (r *SQLiteRepository) CompleteSession(ctx context.Context, id string, completedAt time.Time, build BuildResultFunc) (*models.Session, *models.Result, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", classifySQLiteError(err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET status = 'completed', completed_at = ? WHERE id = ? AND status = 'open'`,
		formatTime(completedAt), id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update session: %w", classifySQLiteError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return nil, nil, r.missingOrClosed(ctx, tx, id)
	}

	s, err := scanSQLiteSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", classifySQLiteError(err))
	}

	responses, err := listSQLiteResponses(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	result, err := build(s, responses)
	if err != nil {
		return nil, nil, err
	}

	cols, err := encodeResult(result)
	if err != nil {
		return nil, nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO results (session_id, assessment_id, user_id, overall_score, domain_scores, summary_tier,
			executive_summary, strengths, growth_areas, recommendations, next_action_interval_days, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.SessionID,
		result.AssessmentID,
		result.UserID,
		result.Overall,
		string(cols.domainScores),
		string(result.Tier),
		result.Summary,
		string(cols.strengths),
		string(cols.growthAreas),
		string(cols.recommendations),
		result.NextActionInterval,
		formatTime(result.CreatedAt),
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, nil, ErrSessionClosed
		}
		return nil, nil, fmt.Errorf("failed to insert result: %w", classifySQLiteError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit completion: %w", classifySQLiteError(err))
	}
	return s, result, nil
}

// GetResult retrieves the result of a completed session
func (r *SQLiteRepository) GetResult(ctx context.Context, sessionID string) (*models.Result, error) {
	query := `
		SELECT session_id, assessment_id, user_id, overall_score, domain_scores, summary_tier,
			executive_summary, strengths, growth_areas, recommendations, next_action_interval_days, created_at
		FROM results
		WHERE session_id = ?
	`

	var res models.Result
	var tier, createdAt string
	var domainScores, strengths, growthAreas, recommendations string

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&res.SessionID,
		&res.AssessmentID,
		&res.UserID,
		&res.Overall,
		&domainScores,
		&tier,
		&res.Summary,
		&strengths,
		&growthAreas,
		&recommendations,
		&res.NextActionInterval,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get result: %w", classifySQLiteError(err))
	}

	res.Tier = models.SummaryTier(tier)
	if res.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	cols := resultColumns{
		domainScores:    []byte(domainScores),
		strengths:       []byte(strengths),
		growthAreas:     []byte(growthAreas),
		recommendations: []byte(recommendations),
	}
	if err := cols.decodeInto(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func scanSQLiteSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var s models.Session
	var status, startedAt string
	var completedAt sql.NullString

	if err := row.Scan(&s.ID, &s.UserID, &s.AssessmentID, &status, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(status)

	var err error
	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		s.CompletedAt = &t
	}
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// classifySQLiteError marks busy and locked databases as transient
func classifySQLiteError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return transient(err)
		}
	}
	return err
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
