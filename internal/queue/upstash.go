package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/config"
)

// APIError is a non-2xx response from the Upstash REST API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// UpstashBackend pops messages from a Redis list through the Upstash REST
// API. RPOP is destructive so Ack does nothing.
type UpstashBackend struct {
	baseURL    string
	token      string
	key        string
	httpClient *http.Client
}

// NewUpstashBackend creates a backend for s.RESTURL, popping from s.QueueKey.
func NewUpstashBackend(s config.Settings) (*UpstashBackend, error) {
	u, err := url.Parse(s.RESTURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid rest_url %q", s.RESTURL)
	}
	key := s.QueueKey
	if key == "" {
		key = config.DefaultQueueKey
	}
	return &UpstashBackend{
		baseURL:    strings.TrimRight(s.RESTURL, "/"),
		token:      s.RESTToken,
		key:        key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type upstashResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Receive pops at most one message. A null result means the list is empty.
func (b *UpstashBackend) Receive(ctx context.Context) ([]*Message, error) {
	var resp upstashResponse
	if err := b.do(ctx, http.MethodGet, "/rpop/"+url.PathEscape(b.key), nil, &resp); err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(resp.Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	return []*Message{{Body: raw}}, nil
}

func (b *UpstashBackend) Ack(context.Context, *Message) error { return nil }

// Send pushes body onto the head of the list with LPUSH.
func (b *UpstashBackend) Send(ctx context.Context, body []byte) error {
	cmd := []string{"LPUSH", b.key, string(body)}
	var resp upstashResponse
	return b.do(ctx, http.MethodPost, "", cmd, &resp)
}

func (b *UpstashBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

func (b *UpstashBackend) do(ctx context.Context, method, path string, body any, result *upstashResponse) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp upstashResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: result.Error}
	}
	return nil
}
