package model

import (
	"strings"
	"time"
)

// EventFilter holds criteria for querying the timeline.
type EventFilter struct {
	Status   []Status `json:"status,omitempty"`
	Search   string   `json:"search,omitempty"` // case-insensitive match on title/body/agent_id/category
	AgentID  string   `json:"agent_id,omitempty"`
	Category string   `json:"category,omitempty"`
	Upcoming *bool    `json:"upcoming,omitempty"` // nil = both, true = timestamp after now, false = at or before now
	Limit    int      `json:"limit,omitempty"`
}

// Match reports whether e satisfies every criterion of f.
func (f EventFilter) Match(e *Event, now time.Time) bool {
	if len(f.Status) > 0 && !containsStatus(f.Status, e.Status) {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Category != "" && !strings.EqualFold(e.Category, f.Category) {
		return false
	}
	if f.Upcoming != nil && e.IsUpcoming(now) != *f.Upcoming {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Body), q) &&
			!strings.Contains(strings.ToLower(e.AgentID), q) &&
			!strings.Contains(strings.ToLower(e.Category), q) {
			return false
		}
	}
	return true
}

// Apply returns the events matching f, preserving input order and honoring Limit.
func (f EventFilter) Apply(events []*Event, now time.Time) []*Event {
	out := make([]*Event, 0, len(events))
	for _, e := range events {
		if !f.Match(e, now) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
