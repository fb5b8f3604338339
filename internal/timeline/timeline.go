// Package timeline holds the deduplicated set of latest events per task and
// notifies listeners after each committed write.
//
// A Timeline sits in front of a store.Store. Writes go to the store first;
// the in-memory index and subscribers only see an event once the store has
// accepted it, so readers never observe a write that failed.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/store"
)

// StoreError reports an upsert the store could not commit.
type StoreError struct {
	TaskID string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store event %s: %v", e.TaskID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Listener is called with a copy of each committed event.
type Listener func(e *model.Event)

// Timeline is the upsertable, queryable collection of events.
type Timeline struct {
	store store.Store
	now   func() time.Time

	// writeMu serializes Upsert so listeners see commits in order.
	writeMu sync.Mutex

	mu     sync.RWMutex
	events map[string]*model.Event // by task ID

	subMu     sync.RWMutex
	listeners map[int]Listener
	nextSub   int
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithClock sets the source of ReceivedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(t *Timeline) { t.now = now }
}

// Open loads the current contents of s into a new Timeline.
func Open(ctx context.Context, s store.Store, opts ...Option) (*Timeline, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	t := &Timeline{
		store:     s,
		now:       func() time.Time { return time.Now().UTC() },
		events:    make(map[string]*model.Event, len(events)),
		listeners: make(map[int]Listener),
	}
	for _, e := range events {
		t.events[e.TaskID] = e
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Upsert stores e under its TaskID, replacing any previous event for that
// task, and stamps ReceivedAt with the commit time. The caller's event is not
// modified. Listeners run after the store has accepted the write; on failure
// a *StoreError is returned and nothing changes.
func (t *Timeline) Upsert(ctx context.Context, e *model.Event) (*model.Event, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	stored := e.Clone()
	stored.ReceivedAt = t.now()

	t.mu.RLock()
	prev, ok := t.events[e.TaskID]
	t.mu.RUnlock()
	if ok && stored.ReceivedAt.Before(prev.ReceivedAt) {
		stored.ReceivedAt = prev.ReceivedAt
	}

	if err := t.store.UpsertEvent(ctx, stored); err != nil {
		return nil, &StoreError{TaskID: e.TaskID, Err: err}
	}

	t.mu.Lock()
	t.events[stored.TaskID] = stored
	t.mu.Unlock()

	t.notify(stored)
	return stored.Clone(), nil
}

// Snapshot returns copies of all events, most recently received first.
func (t *Timeline) Snapshot() []*model.Event {
	t.mu.RLock()
	out := make([]*model.Event, 0, len(t.events))
	for _, e := range t.events {
		out = append(out, e.Clone())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// Query returns the snapshot entries matching f.
func (t *Timeline) Query(f model.EventFilter, now time.Time) []*model.Event {
	return f.Apply(t.Snapshot(), now)
}

// Get returns the event for a task, if any.
func (t *Timeline) Get(taskID string) (*model.Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.events[taskID]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Len returns the number of tasks on the timeline.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// Subscribe registers fn to run after every committed upsert. Call the
// returned function to unsubscribe.
func (t *Timeline) Subscribe(fn Listener) func() {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.listeners[id] = fn
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.listeners, id)
			t.subMu.Unlock()
		})
	}
}

func (t *Timeline) notify(e *model.Event) {
	t.subMu.RLock()
	fns := make([]Listener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.subMu.RUnlock()

	for _, fn := range fns {
		fn(e.Clone())
	}
}
