// Package backend talks to the grievance answer service over HTTP+JSON and
// turns engine requests into result events.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"grievancebot/services/orchestrator/langpack"
)

const maxErrorBody = 512

// ErrTransient marks failures worth retrying: timeouts, network errors,
// 5xx and 429 responses.
var ErrTransient = errors.New("transient backend failure")

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// StatusError is an unexpected HTTP status from the backend. Message holds
// the reply or error text of a JSON error body when there is one.
type StatusError struct {
	Path    string
	Code    int
	Body    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s returned %d: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("backend %s returned %d: %s", e.Path, e.Code, e.Body)
}

type errorBody struct {
	Reply  string `json:"reply"`
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}

// errorMessage extracts the human readable part of a JSON error body.
func errorMessage(body []byte) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return ""
	}
	switch {
	case eb.Reply != "":
		return eb.Reply
	case eb.Error != "":
		return eb.Error
	}
	if d, ok := eb.Detail.(string); ok {
		return d
	}
	return ""
}

func (e *StatusError) Unwrap() error {
	if e.Code >= 500 || e.Code == http.StatusTooManyRequests {
		return ErrTransient
	}
	return nil
}

// Timeouts bounds each endpoint.
type Timeouts struct {
	Query       time.Duration
	Status      time.Duration
	Rating      time.Duration
	Health      time.Duration
	Suggestions time.Duration
}

// DefaultTimeouts returns the per-endpoint defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Query:       20 * time.Second,
		Status:      15 * time.Second,
		Rating:      10 * time.Second,
		Health:      5 * time.Second,
		Suggestions: 10 * time.Second,
	}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeouts sets the per-endpoint timeouts.
func WithTimeouts(t Timeouts) ClientOption {
	return func(c *Client) { c.timeouts = t }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// Client is the HTTP gateway to the answer service.
type Client struct {
	baseURL  string
	http     *http.Client
	timeouts Timeouts
	log      *zap.Logger
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		timeouts: DefaultTimeouts(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryRequest is the body of POST /query/.
type QueryRequest struct {
	InputText string `json:"input_text"`
	Language  string `json:"language"`
	SessionID string `json:"session_id"`
}

type queryResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

// Query asks the answer service a free-text question.
func (c *Client) Query(ctx context.Context, req QueryRequest) (string, error) {
	var resp queryResponse
	if _, err := c.do(ctx, c.timeouts.Query, http.MethodPost, "/query/", req, &resp, http.StatusOK); err != nil {
		return "", err
	}
	if resp.Reply == "" && resp.Error != "" {
		return "", fmt.Errorf("query rejected: %s", resp.Error)
	}
	return resp.Reply, nil
}

// StatusOutcome is the answer to a status lookup. A grievance that does not
// exist is a normal outcome, not an error.
type StatusOutcome struct {
	Found   bool   `json:"found"`
	Message string `json:"message"`
}

type statusRequest struct {
	GrievanceID string `json:"grievance_id"`
	Language    string `json:"language"`
}

// GrievanceStatus looks up a grievance by id or mobile number.
func (c *Client) GrievanceStatus(ctx context.Context, grievanceID string, locale langpack.Locale) (StatusOutcome, error) {
	var out StatusOutcome
	code, err := c.do(ctx, c.timeouts.Status, http.MethodPost, "/grievance/status/",
		statusRequest{GrievanceID: grievanceID, Language: string(locale)}, &out,
		http.StatusOK, http.StatusNotFound)
	if err != nil {
		return StatusOutcome{}, err
	}
	if code == http.StatusNotFound {
		out.Found = false
	}
	return out, nil
}

// RatingRequest is the body of POST /rating/.
type RatingRequest struct {
	Rating       int    `json:"rating"`
	SessionID    string `json:"session_id"`
	Language     string `json:"language"`
	GrievanceID  string `json:"grievance_id"`
	FeedbackText string `json:"feedback_text"`
}

// SubmitRating records a satisfaction rating.
func (c *Client) SubmitRating(ctx context.Context, req RatingRequest) error {
	_, err := c.do(ctx, c.timeouts.Rating, http.MethodPost, "/rating/", req, nil)
	return err
}

// Health is the readiness report of the answer service.
type Health struct {
	Status       string `json:"status"`
	OllamaStatus struct {
		Connected bool `json:"connected"`
	} `json:"ollama_status"`
	RAGStatus struct {
		Initialized bool `json:"initialized"`
	} `json:"rag_status"`
}

// Ready reports whether the service can answer.
func (h Health) Ready() bool {
	switch h.Status {
	case "healthy", "ok":
		return true
	}
	return h.OllamaStatus.Connected && h.RAGStatus.Initialized
}

// Health fetches the readiness report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	_, err := c.do(ctx, c.timeouts.Health, http.MethodGet, "/health/", nil, &h, http.StatusOK)
	return h, err
}

// Suggestions fetches the quick replies offered for a locale.
func (c *Client) Suggestions(ctx context.Context, locale langpack.Locale) ([]string, error) {
	var resp struct {
		Suggestions []string `json:"suggestions"`
	}
	path := "/suggestions/?language=" + url.QueryEscape(string(locale))
	if _, err := c.do(ctx, c.timeouts.Suggestions, http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// do performs one call bounded by timeout. out is decoded for any accepted
// status; with no accepted statuses listed every 2xx is accepted.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, in, out any, accept ...int) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("backend %s: %w", path, ctx.Err())
		}
		return 0, fmt.Errorf("backend %s: %w", path, errors.Join(ErrTransient, err))
	}
	defer resp.Body.Close()

	c.log.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if !accepted(resp.StatusCode, accept) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &StatusError{
			Path:    path,
			Code:    resp.StatusCode,
			Body:    strings.TrimSpace(string(snippet)),
			Message: errorMessage(snippet),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func accepted(code int, accept []int) bool {
	if len(accept) == 0 {
		return code >= 200 && code < 300
	}
	for _, a := range accept {
		if code == a {
			return true
		}
	}
	return false
}
