// Package presence derives an agent roster from timeline upserts.
//
// Each committed record updates the reporting agent's entry: when it was
// last heard from, which task it last reported on and with what status. A
// background reaper marks agents that have gone quiet as idle; they come
// back as soon as they report again.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// Entry is one agent's roster line.
type Entry struct {
	AgentID    string       `json:"agent_id"`
	FirstSeen  time.Time    `json:"first_seen"`
	LastSeen   time.Time    `json:"last_seen"`
	LastTaskID string       `json:"last_task_id"`
	LastTitle  string       `json:"last_title"`
	LastStatus model.Status `json:"last_status"`
	Tasks      int          `json:"tasks"`       // distinct tasks reported
	EventCount int64        `json:"event_count"` // upserts seen
	IdleSecs   float64      `json:"idle_secs"`
	Idle       bool         `json:"idle,omitempty"` // true once the reaper marked it
}

// ReaperConfig configures the background idle sweep.
type ReaperConfig struct {
	// IdleThreshold is how long an agent must be quiet before it is marked
	// idle. Default: 15 minutes.
	IdleThreshold time.Duration

	// SweepInterval is how often the reaper scans. Default: 60 seconds.
	SweepInterval time.Duration

	// OnIdle is called outside the lock for each agent newly marked idle.
	OnIdle func(agentID string)
}

// Tracker maintains an in-memory roster of reporting agents.
type Tracker struct {
	mu     sync.RWMutex
	agents map[string]*agentState
	now    func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type agentState struct {
	firstSeen  time.Time
	lastSeen   time.Time
	lastTask   string
	lastTitle  string
	lastStatus model.Status
	tasks      map[string]struct{}
	eventCount int64
	idle       bool
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		agents: make(map[string]*agentState),
		now:    time.Now,
	}
}

// Record updates the roster from a committed record. Its signature matches
// timeline.Listener.
func (t *Tracker) Record(e *model.Event) {
	if e == nil || e.AgentID == "" {
		return
	}
	seen := e.ReceivedAt
	if seen.IsZero() {
		seen = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.agents[e.AgentID]
	if !ok {
		state = &agentState{firstSeen: seen, tasks: make(map[string]struct{})}
		t.agents[e.AgentID] = state
	}
	if state.idle {
		slog.Info("presence: agent active again", "agent_id", e.AgentID)
		state.idle = false
	}
	if seen.Before(state.firstSeen) {
		state.firstSeen = seen
	}
	state.eventCount++
	state.tasks[e.TaskID] = struct{}{}

	// Seeding from a snapshot can deliver records out of order.
	if seen.Before(state.lastSeen) {
		return
	}
	state.lastSeen = seen
	state.lastTask = e.TaskID
	state.lastTitle = e.Title
	state.lastStatus = e.Status
}

// Roster returns all agents, most recently active first. Agents quiet for
// longer than activeWithin are left out; pass 0 to include everyone.
func (t *Tracker) Roster(activeWithin time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.agents))
	for id, state := range t.agents {
		idle := now.Sub(state.lastSeen)
		if activeWithin > 0 && idle > activeWithin {
			continue
		}
		entries = append(entries, Entry{
			AgentID:    id,
			FirstSeen:  state.firstSeen,
			LastSeen:   state.lastSeen,
			LastTaskID: state.lastTask,
			LastTitle:  state.lastTitle,
			LastStatus: state.lastStatus,
			Tasks:      len(state.tasks),
			EventCount: state.eventCount,
			IdleSecs:   idle.Seconds(),
			Idle:       state.idle,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].LastSeen.After(entries[j].LastSeen)
		}
		return entries[i].AgentID < entries[j].AgentID
	})
	return entries
}

// StartReaper launches a goroutine that periodically marks quiet agents
// idle. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 15 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := t.now()
	var newlyIdle []string

	t.mu.Lock()
	for id, state := range t.agents {
		if state.idle {
			continue
		}
		if now.Sub(state.lastSeen) > cfg.IdleThreshold {
			state.idle = true
			newlyIdle = append(newlyIdle, id)
		}
	}
	t.mu.Unlock()

	sort.Strings(newlyIdle)
	for _, id := range newlyIdle {
		slog.Info("presence: agent idle", "agent_id", id, "threshold", cfg.IdleThreshold)
		if cfg.OnIdle != nil {
			cfg.OnIdle(id)
		}
	}
}
