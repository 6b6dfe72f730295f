package models

import (
	"time"
)

// SessionStatus represents the current state of an assessment session
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"      // Accepting responses
	SessionCompleted SessionStatus = "completed" // Scored, terminal
)

// Session is one user's single attempt at an assessment.
// Transitions open -> completed exactly once.
type Session struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	AssessmentID string        `json:"assessment_id"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// IsOpen returns true if the session still accepts responses
func (s *Session) IsOpen() bool {
	return s.Status == SessionOpen
}

// IsTerminal returns true if the session is in its final state
func (s *Session) IsTerminal() bool {
	return s.Status == SessionCompleted
}

// Response is a user's answer to one question within one session.
// At most one exists per (SessionID, QuestionID).
type Response struct {
	SessionID  string    `json:"session_id"`
	QuestionID string    `json:"question_id"`
	Value      string    `json:"value"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionFilters defines filters for listing sessions
type SessionFilters struct {
	UserID       string
	AssessmentID string
	Status       SessionStatus
	Limit        int
	Offset       int
}

// Progress describes how far a session is from being submittable
type Progress struct {
	SessionID string   `json:"session_id"`
	Answered  int      `json:"answered"`
	Total     int      `json:"total"`
	Missing   []string `json:"missing"`
	Complete  bool     `json:"complete"`
}

// StartSessionResponse is returned after starting an assessment
type StartSessionResponse struct {
	SessionID    string        `json:"session_id"`
	AssessmentID string        `json:"assessment_id"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
}

// AnswerRequest carries one raw answer
type AnswerRequest struct {
	Value *string `json:"value"`
}
