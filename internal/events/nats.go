package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// HeaderTaskID carries the task id of an upsert notification so consumers
// can route on it without decoding the body.
const HeaderTaskID = "Timeline-Task-Id"

// flushTimeout bounds how long Close waits for buffered notifications.
const flushTimeout = 2 * time.Second

// NATSPublisher publishes timeline notifications as JSON on NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url (TIMELINE_NATS_URL).
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("livetimeline"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish encodes event and sends it on topic. Upsert notifications also
// carry HeaderTaskID.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	if up, ok := event.(EventUpserted); ok && up.Event != nil {
		msg.Header.Set(HeaderTaskID, up.Event.TaskID)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered notifications, then closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn.IsConnected() {
		_ = p.conn.FlushTimeout(flushTimeout)
	}
	p.conn.Close()
	return nil
}

// NATSSubscriber delivers raw notification payloads from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects with unlimited reconnects. Extra options such as
// disconnect or reconnect handlers are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	all := append([]nats.Option{
		nats.Name("livetimeline-watch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// subscription bridges a NATS callback to a buffered channel. Messages that
// arrive while the buffer is full are dropped so the NATS reader never
// blocks; consumers re-list the timeline to catch up.
type subscription struct {
	ch     chan []byte
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg.Data:
	default:
	}
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		if s.sub != nil {
			_ = s.sub.Unsubscribe()
		}
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		// Discard what is buffered so readers see the close right away.
		for {
			select {
			case <-s.ch:
			default:
				close(s.ch)
				return
			}
		}
	})
}

// Subscribe returns a channel of payloads published on topic, which may use
// NATS wildcards such as TopicAll. The cancel function unsubscribes and
// closes the channel; it is safe to call more than once.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	st := &subscription{ch: make(chan []byte, 64)}

	sub, err := s.conn.Subscribe(topic, st.deliver)
	if err != nil {
		st.cancel()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	st.sub = sub

	// Make sure the server knows about the subscription before returning,
	// otherwise an immediate publish from another connection can be missed.
	if err := s.conn.Flush(); err != nil {
		st.cancel()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return st.ch, st.cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
