package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseReplaySize is how many recent notifications are kept for
	// Last-Event-ID resumption. Older gaps are repaired with a snapshot.
	sseReplaySize = 512

	// sseClientBuffer is the per-client queue. A client that falls this far
	// behind is disconnected and expected to resume with Last-Event-ID.
	sseClientBuffer = 64

	sseKeepaliveInterval = 15 * time.Second

	// sseSnapshotTopic carries the whole timeline as a ListEventsResponse.
	sseSnapshotTopic = "timeline.snapshot"
)

// sseEvent is one numbered notification.
type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// sseHub numbers notifications, remembers the most recent ones and fans
// them out to connected stream clients.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64

	// replay is a ring of the last sseReplaySize events; head is the index
	// of the oldest one once the ring is full.
	replay []sseEvent
	head   int
}

// sseClient is one connected stream. lagged is closed when the client's
// queue overflowed.
type sseClient struct {
	topics []string
	ch     chan *sseEvent
	lagged chan struct{}
	once   sync.Once
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
		replay:  make([]sseEvent, 0, sseReplaySize),
	}
}

func (h *sseHub) broadcast(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := sseEvent{ID: h.lastID, Topic: topic, Data: payload}
	if len(h.replay) < sseReplaySize {
		h.replay = append(h.replay, evt)
	} else {
		h.replay[h.head] = evt
		h.head = (h.head + 1) % sseReplaySize
	}

	for c := range h.clients {
		if !c.matchesTopic(topic) {
			continue
		}
		select {
		case c.ch <- &evt:
		default:
			c.once.Do(func() { close(c.lagged) })
		}
	}
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c := &sseClient{
		topics: topics,
		ch:     make(chan *sseEvent, sseClientBuffer),
		lagged: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns remembered events with ID > lastID, oldest first.
// complete is false when events after lastID have already been evicted, or
// when lastID is ahead of the hub because it was issued before a restart.
func (h *sseHub) eventsSince(lastID uint64) (evts []*sseEvent, complete bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.replay)
	for i := range n {
		evt := h.replay[(h.head+i)%n]
		if evt.ID > lastID {
			evts = append(evts, &evt)
		}
	}
	complete = lastID == h.lastID || (len(evts) > 0 && evts[0].ID == lastID+1)
	return evts, complete
}

func (c *sseClient) matchesTopic(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic NATS-style: "*" is exactly
// one segment and a trailing ">" is one or more segments.
func matchTopicPattern(pattern, topic string) bool {
	for {
		pseg, prest, pmore := strings.Cut(pattern, ".")
		if pseg == ">" {
			return topic != ""
		}
		tseg, trest, tmore := strings.Cut(topic, ".")
		if topic == "" || (pseg != "*" && pseg != tseg) {
			return false
		}
		if !pmore || !tmore {
			return pmore == tmore
		}
		pattern, topic = prest, trest
	}
}

func parseTopics(r *http.Request) []string {
	var topics []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// handleEventStream handles GET /v1/events/stream.
//
// Query parameters: topics (comma-separated patterns) and snapshot=true for
// an initial sseSnapshotTopic frame. A Last-Event-ID header resumes from
// the replay ring, falling back to a snapshot when the gap is too old.
func (s *TimelineServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	wantSnapshot, _ := strconv.ParseBool(r.URL.Query().Get("snapshot"))

	// Subscribe before reading the snapshot or the ring so nothing falls in
	// between; duplicates are filtered by sent below.
	client := s.sseHub.subscribe(parseTopics(r))
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var sent uint64
	send := func(evt *sseEvent) {
		if evt.ID <= sent {
			return
		}
		writeSSEEvent(w, evt)
		sent = evt.ID
	}

	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			replayed, complete := s.sseHub.eventsSince(lastID)
			if !complete {
				wantSnapshot = true
			}
			if wantSnapshot {
				s.writeSnapshot(w)
				wantSnapshot = false
			}
			for _, evt := range replayed {
				if client.matchesTopic(evt.Topic) {
					send(evt)
				}
			}
		}
	}
	if wantSnapshot {
		s.writeSnapshot(w)
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.lagged:
			s.logger.Warn("sse client fell behind, closing stream", "last_sent", sent)
			return
		case evt := <-client.ch:
			send(evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (s *TimelineServer) writeSnapshot(w io.Writer) {
	data, err := json.Marshal(ListEventsResponse{Events: s.timeline.Snapshot(), Total: s.timeline.Len()})
	if err != nil {
		s.logger.Error("encoding stream snapshot", "err", err)
		return
	}
	fmt.Fprintf(w, "event:%s\ndata:%s\n\n", sseSnapshotTopic, data)
}

func writeSSEEvent(w io.Writer, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
