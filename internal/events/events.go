package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// Event topic constants
const (
	TopicEventUpserted = "timeline.event.upserted"
	TopicPollerStatus  = "timeline.poller.status"

	// TopicAll matches every timeline topic.
	TopicAll = "timeline.>"
)

// Event types

type EventUpserted struct {
	Event *model.Event `json:"event"`
}

type PollerStatus struct {
	State     string `json:"state"`
	IsPolling bool   `json:"is_polling"`
	LastError string `json:"last_error,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// DecodeUpserted parses a TopicEventUpserted payload.
func DecodeUpserted(data []byte) (*model.Event, error) {
	var msg EventUpserted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding upsert notification: %w", err)
	}
	if msg.Event == nil {
		return nil, fmt.Errorf("upsert notification has no event")
	}
	return msg.Event, nil
}
