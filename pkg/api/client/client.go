// Package client is a typed HTTP client for the deployment queue service.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:4100"

// Client provides typed access to the queue API for interactive tools.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithToken sets the shared secret sent with queue processing and site
// removal requests.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL: strings.TrimRight(trimmed, "/"),
		// Processing a batch waits for deploys to go live.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string

	summary Summary
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Summary is the outcome of one queue batch.
type Summary struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Requeued  int      `json:"requeued"`
	Reclaimed int      `json:"reclaimed"`
	Errors    []string `json:"errors"`
	Duration  int64    `json:"duration"`
}

// Deployment is a deployment queue entry.
type Deployment struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	LiveURL      *string    `json:"live_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// LogEntry is one deployment progress entry.
type LogEntry struct {
	ID           int64           `json:"id"`
	DeploymentID string          `json:"deployment_id"`
	ProjectID    string          `json:"project_id"`
	Level        string          `json:"log_level"`
	Message      string          `json:"message"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ProcessQueue runs one batch. A failed batch returns the partial summary
// together with the error.
func (c *Client) ProcessQueue(ctx context.Context) (Summary, error) {
	var out struct {
		Summary
		Error string `json:"error"`
	}
	err := c.do(ctx, http.MethodPost, "/process-deployment-queue", &out)
	var apiErr APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusInternalServerError {
		return apiErr.summary, err
	}
	return out.Summary, err
}

// GetDeployment loads one queue entry.
func (c *Client) GetDeployment(ctx context.Context, id string) (Deployment, error) {
	var out Deployment
	err := c.do(ctx, http.MethodGet, "/deployments/"+url.PathEscape(id), &out)
	return out, err
}

// ListLogs pages through the stored log entries of a deployment.
func (c *Client) ListLogs(ctx context.Context, id string, limit, offset int) ([]LogEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/deployments/" + url.PathEscape(id) + "/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []LogEntry
	err := c.do(ctx, http.MethodGet, path, &out)
	return out, err
}

// DeleteProjectSite removes the hosted site of a project and clears its
// recorded hosting fields.
func (c *Client) DeleteProjectSite(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(projectID)+"/site", nil)
}

// FollowLogs streams new log entries of a deployment to fn until ctx is
// done, the connection drops or fn returns an error.
func (c *Client) FollowLogs(ctx context.Context, id string, fn func(LogEntry) error) error {
	endpoint := c.streamURL(id)
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
		}
		return fmt.Errorf("dial log stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read log stream: %w", err)
		}
		var entry LogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("decode log entry: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
}

func (c *Client) streamURL(id string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/deployments/" + url.PathEscape(id) + "/logs"
}

func (c *Client) do(ctx context.Context, method, path string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("X-Queue-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		apiErr := APIError{Status: resp.StatusCode, Message: errorMessage(data)}
		_ = json.Unmarshal(data, &apiErr.summary)
		return apiErr
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return ""
	}
	return errorMessage(data)
}

func errorMessage(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}
