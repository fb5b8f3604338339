// Package memory implements store.Store in process memory. It is used when no
// database is configured; contents are lost on exit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/store"
)

// MemoryStore keeps one event per task ID.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*model.Event
}

var _ store.Store = (*MemoryStore)(nil)

// New returns an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{events: make(map[string]*model.Event)}
}

func (s *MemoryStore) UpsertEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.TaskID] = event.Clone()
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]*model.Event, error) {
	s.mu.RLock()
	result := make([]*model.Event, 0, len(s.events))
	for _, e := range s.events {
		result = append(result, e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReceivedAt.Equal(result[j].ReceivedAt) {
			return result[i].ReceivedAt.After(result[j].ReceivedAt)
		}
		return result[i].TaskID < result[j].TaskID
	})
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
