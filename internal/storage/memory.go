package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// MemoryRepository implements Repository in process memory
type MemoryRepository struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	responses map[string]map[string]*models.Response // session id -> question id
	results   map[string]*models.Result
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions:  make(map[string]*models.Session),
		responses: make(map[string]map[string]*models.Response),
		results:   make(map[string]*models.Result),
	}
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateSession stores a new session
func (r *MemoryRepository) CreateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("failed to create session: duplicate id %s", s.ID)
	}
	r.sessions[s.ID] = copySession(s)
	return nil
}

// GetSession retrieves a session by ID
func (r *MemoryRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

// ListSessions returns sessions matching the filters, newest first
func (r *MemoryRepository) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sessions []*models.Session
	for _, s := range r.sessions {
		if filters.UserID != "" && s.UserID != filters.UserID {
			continue
		}
		if filters.AssessmentID != "" && s.AssessmentID != filters.AssessmentID {
			continue
		}
		if filters.Status != "" && s.Status != filters.Status {
			continue
		}
		sessions = append(sessions, copySession(s))
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].StartedAt.After(sessions[j].StartedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(sessions) {
			return nil, nil
		}
		sessions = sessions[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(sessions) {
		sessions = sessions[:filters.Limit]
	}
	return sessions, nil
}

// UpsertResponse stores the response, replacing any previous value for the same question
func (r *MemoryRepository) UpsertResponse(ctx context.Context, resp *models.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[resp.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.IsOpen() {
		return ErrSessionClosed
	}

	bySession, ok := r.responses[resp.SessionID]
	if !ok {
		bySession = make(map[string]*models.Response)
		r.responses[resp.SessionID] = bySession
	}
	stored := *resp
	bySession[resp.QuestionID] = &stored
	return nil
}

// ListResponses returns the responses of a session ordered by question id
func (r *MemoryRepository) ListResponses(ctx context.Context, sessionID string) ([]*models.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listResponses(sessionID), nil
}

func (r *MemoryRepository) listResponses(sessionID string) []*models.Response {
	bySession := r.responses[sessionID]
	out := make([]*models.Response, 0, len(bySession))
	for _, resp := range bySession {
		c := *resp
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// CompleteSession transitions the session and stores its result under one lock
func (r *MemoryRepository) CompleteSession(ctx context.Context, id string, completedAt time.Time, build BuildResultFunc) (*models.Session, *models.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	if !s.IsOpen() {
		return nil, nil, ErrSessionClosed
	}
	if _, exists := r.results[id]; exists {
		return nil, nil, ErrSessionClosed
	}

	completed := copySession(s)
	completed.Status = models.SessionCompleted
	completed.CompletedAt = &completedAt

	result, err := build(copySession(completed), r.listResponses(id))
	if err != nil {
		return nil, nil, err
	}

	r.sessions[id] = completed
	r.results[id] = copyResult(result)
	return copySession(completed), copyResult(result), nil
}

// GetResult retrieves the result of a completed session
func (r *MemoryRepository) GetResult(ctx context.Context, sessionID string) (*models.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.results[sessionID]
	if !ok {
		return nil, nil
	}
	return copyResult(res), nil
}

func copySession(s *models.Session) *models.Session {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyResult(res *models.Result) *models.Result {
	c := *res
	if res.ByDomain != nil {
		c.ByDomain = make(map[string]float64, len(res.ByDomain))
		for k, v := range res.ByDomain {
			c.ByDomain[k] = v
		}
	}
	c.Strengths = cloneStrings(res.Strengths)
	c.GrowthAreas = cloneStrings(res.GrowthAreas)
	c.Recommendations = cloneStrings(res.Recommendations)
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
