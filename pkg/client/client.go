package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Client is a Go SDK for the assessment-engine API
type Client struct {
	baseURL    string
	token      string
	userID     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserID identifies the caller with the X-User-ID header. The server
// only honours it when header identity is enabled.
func WithUserID(userID string) Option {
	return func(c *Client) {
		c.userID = userID
	}
}

// NewClient creates a new assessment-engine client. token is a bearer
// token issued by the identity provider and may be empty.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error returned by the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    json.RawMessage
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: HTTP %d %s - %s", e.StatusCode, e.Code, e.Message)
}

// Missing returns the unanswered question ids of an "incomplete" error
func (e *APIError) Missing() []string {
	var details struct {
		Missing []string `json:"missing"`
	}
	if e.Code != "incomplete" || json.Unmarshal(e.Details, &details) != nil {
		return nil
	}
	return details.Missing
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a "conflict" error, e.g. a session that
// is already completed. Use IsIncomplete for unanswered questions.
func IsConflict(err error) bool {
	return hasCode(err, "conflict")
}

// IsIncomplete reports whether a submit was rejected for missing answers
func IsIncomplete(err error) bool {
	return hasCode(err, "incomplete")
}

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// ListOptions contains options for listing sessions
type ListOptions struct {
	AssessmentID string
	Status       string
	Limit        int
	Offset       int
}

// ListAssessments returns the published assessments
func (c *Client) ListAssessments(ctx context.Context) ([]models.AssessmentSummary, error) {
	var data struct {
		Assessments []models.AssessmentSummary `json:"assessments"`
		Total       int                        `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/assessments", nil, &data); err != nil {
		return nil, err
	}
	return data.Assessments, nil
}

// GetAssessment retrieves an assessment with its questions
func (c *Client) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	var a models.Assessment
	if err := c.call(ctx, http.MethodGet, "/api/v1/assessments/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// StartAssessment opens a new session of an assessment
func (c *Client) StartAssessment(ctx context.Context, assessmentID string) (*models.StartSessionResponse, error) {
	var started models.StartSessionResponse
	path := "/api/v1/assessments/" + url.PathEscape(assessmentID) + "/sessions"
	if err := c.call(ctx, http.MethodPost, path, nil, &started); err != nil {
		return nil, err
	}
	return &started, nil
}

// ListSessions lists the caller's sessions
func (c *Client) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := url.Values{}
	if opts.AssessmentID != "" {
		query.Set("assessment_id", opts.AssessmentID)
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/sessions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var data struct {
		Sessions []*models.Session `json:"sessions"`
		Total    int               `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data.Sessions, nil
}

// GetSession retrieves one of the caller's sessions
func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	if err := c.call(ctx, http.MethodGet, sessionPath(id, ""), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Answer records or replaces the answer to one question
func (c *Client) Answer(ctx context.Context, sessionID, questionID, value string) (*models.Progress, error) {
	var progress models.Progress
	path := sessionPath(sessionID, "/responses/"+url.PathEscape(questionID))
	if err := c.call(ctx, http.MethodPut, path, models.AnswerRequest{Value: &value}, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// Progress returns how far a session is from being submittable
func (c *Client) Progress(ctx context.Context, sessionID string) (*models.Progress, error) {
	var progress models.Progress
	if err := c.call(ctx, http.MethodGet, sessionPath(sessionID, "/progress"), nil, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// Submit completes a session and returns its result
func (c *Client) Submit(ctx context.Context, sessionID string) (*models.Result, error) {
	var result models.Result
	if err := c.call(ctx, http.MethodPost, sessionPath(sessionID, "/submit"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReport retrieves the stored result of a completed session
func (c *Client) GetReport(ctx context.Context, sessionID string) (*models.Result, error) {
	var result models.Result
	if err := c.call(ctx, http.MethodGet, sessionPath(sessionID, "/report"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportReport downloads the stored report as markdown, html or pdf
func (c *Client) ExportReport(ctx context.Context, sessionID, format string) ([]byte, error) {
	path := sessionPath(sessionID, "/report") + "?format=" + url.QueryEscape(format)
	return c.doRequest(ctx, http.MethodGet, path, nil)
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

func sessionPath(id, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(id) + suffix
}

// call performs a request and decodes the envelope's data into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	result := envelope{Data: out}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp, respBody)
	}

	return respBody, nil
}

func decodeError(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}

	var result struct {
		Error *struct {
			Code    string          `json:"code"`
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &result) == nil && result.Error != nil {
		apiErr.Code = result.Error.Code
		apiErr.Message = result.Error.Message
		apiErr.Details = result.Error.Details
	}

	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
