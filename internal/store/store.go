package store

import (
	"context"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// Store defines the persistence interface for timeline events.
type Store interface {
	// UpsertEvent inserts the event or replaces the one sharing its TaskID.
	// The write is all-or-nothing.
	UpsertEvent(ctx context.Context, event *model.Event) error

	// ListEvents returns every stored event, most recently received first.
	ListEvents(ctx context.Context) ([]*model.Event, error)

	// Lifecycle
	Close() error
}
