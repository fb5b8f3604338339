package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SnapshotTopic is the event name of the initial snapshot frame; its data is
// a ListEventsResponse.
const SnapshotTopic = "timeline.snapshot"

// StreamEvent is one server-sent event.
type StreamEvent struct {
	ID    string
	Topic string
	Data  []byte
}

// Stream connects to GET /v1/events/stream and calls fn for every event
// until ctx is cancelled or the server closes the connection. When snapshot
// is true the server first sends the current timeline as a
// SnapshotTopic event.
func (c *HTTPClient) Stream(ctx context.Context, topics []string, snapshot bool, fn func(StreamEvent) error) error {
	q := url.Values{}
	if len(topics) > 0 {
		q.Set("topics", strings.Join(topics, ","))
	}
	if snapshot {
		q.Set("snapshot", "true")
	}
	path := "/v1/events/stream"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var cur StreamEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Topic != "" || len(cur.Data) > 0 {
				if err := fn(cur); err != nil {
					return err
				}
			}
			cur = StreamEvent{}
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "id:"):
			cur.ID = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			cur.Topic = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			cur.Data = append(cur.Data, strings.TrimPrefix(line, "data:")...)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}
