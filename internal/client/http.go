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

	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/presence"
)

const userAgent = "livetimeline-cli"

// HTTPClient implements TimelineClient using the HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Events ---

func (c *HTTPClient) ListEvents(ctx context.Context, filter model.EventFilter) (*ListEventsResponse, error) {
	q := url.Values{}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = s.String()
		}
		q.Set("status", strings.Join(statuses, ","))
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.AgentID != "" {
		q.Set("agent_id", filter.AgentID)
	}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.Upcoming != nil {
		q.Set("upcoming", strconv.FormatBool(*filter.Upcoming))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListEventsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetEvent(ctx context.Context, taskID string) (*model.Event, error) {
	var e model.Event
	if err := c.doJSON(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(taskID), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// --- Poller ---

func (c *HTTPClient) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) StartPoller(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/poller/start", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) StopPoller(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/poller/stop", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Agents ---

func (c *HTTPClient) Agents(ctx context.Context, activeWithin time.Duration) ([]presence.Entry, error) {
	path := "/v1/agents"
	if activeWithin > 0 {
		path += "?active=" + url.QueryEscape(activeWithin.String())
	}
	var resp struct {
		Agents []presence.Entry `json:"agents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError is a non-2xx response from the timeline server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// doJSON sends a bodiless request and decodes the JSON reply into result.
// Error replies carry {"error": "..."}; anything else is reported verbatim.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var envelope struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			msg = envelope.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding %s reply: %w", path, err)
	}
	return nil
}
