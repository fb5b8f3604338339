// Package client provides a transport-agnostic interface for the timeline
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/presence"
)

// TimelineClient is the interface the CLI commands use to talk to a running
// `timeline serve`.
type TimelineClient interface {
	ListEvents(ctx context.Context, filter model.EventFilter) (*ListEventsResponse, error)
	GetEvent(ctx context.Context, taskID string) (*model.Event, error)

	Status(ctx context.Context) (*StatusResponse, error)
	StartPoller(ctx context.Context) (*StatusResponse, error)
	StopPoller(ctx context.Context) (*StatusResponse, error)

	Agents(ctx context.Context, activeWithin time.Duration) ([]presence.Entry, error)

	Health(ctx context.Context) (string, error)

	// Stream delivers server-sent events until ctx is cancelled.
	Stream(ctx context.Context, topics []string, snapshot bool, fn func(StreamEvent) error) error

	Close() error
}

// ListEventsResponse is the result of ListEvents. Total counts all matches
// before the limit.
type ListEventsResponse struct {
	Events []*model.Event `json:"events"`
	Total  int            `json:"total"`
}

// StatusResponse describes the poller and timeline size.
type StatusResponse struct {
	State     string `json:"state"`
	IsPolling bool   `json:"is_polling"`
	LastError string `json:"last_error,omitempty"`
	Events    int    `json:"events"`
}
