// Package queue provides the remote message sources the poller drains: an
// AWS SQS long-poll queue and an Upstash Redis REST list.
package queue

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/livetimeline/internal/config"
)

// Message is one raw payload received from a backend. Receipt is the handle
// Ack needs; it is empty for backends whose receive is destructive.
type Message struct {
	ID      string
	Body    []byte
	Receipt string
}

// Backend is a source of raw messages. Receive returns an empty slice when
// the queue has no data.
type Backend interface {
	Receive(ctx context.Context) ([]*Message, error)
	Ack(ctx context.Context, m *Message) error
	Close() error
}

// LongPoller is implemented by backends that already wait server-side inside
// Receive, so callers need no idle interval between empty receives.
type LongPoller interface {
	LongPoll() bool
}

// Sender publishes a raw payload onto the queue.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// Dial builds the backend named by s.Backend. Settings are assumed to have
// passed Validate.
func Dial(ctx context.Context, s config.Settings) (Backend, error) {
	switch s.Backend {
	case config.BackendSQS, "":
		return NewSQSBackend(ctx, s)
	case config.BackendUpstash:
		return NewUpstashBackend(s)
	default:
		return nil, fmt.Errorf("unknown backend %q", s.Backend)
	}
}

// DialSender is Dial for producers.
func DialSender(ctx context.Context, s config.Settings) (Sender, error) {
	b, err := Dial(ctx, s)
	if err != nil {
		return nil, err
	}
	sender, ok := b.(Sender)
	if !ok {
		b.Close()
		return nil, fmt.Errorf("backend %q cannot send", s.Backend)
	}
	return sender, nil
}
