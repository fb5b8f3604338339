package events

import "context"

// NoopPublisher drops every change. The server uses it when no NATS URL is
// configured, so SSE remains the only live feed.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
