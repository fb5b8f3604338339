package model

import (
	"fmt"
	"time"
)

// Status is the state an agent reports for a task.
type Status string

const (
	StatusInfo       Status = "info"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusWarning    Status = "warning"
	StatusError      Status = "error"
)

// Statuses lists every known status in display order.
var Statuses = []Status{StatusInfo, StatusInProgress, StatusSuccess, StatusWarning, StatusError}

// String returns the wire representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is one of the five known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusInfo, StatusInProgress, StatusSuccess, StatusWarning, StatusError:
		return true
	}
	return false
}

// Label returns the human-readable name of the status.
func (s Status) Label() string {
	switch s {
	case StatusInfo:
		return "Info"
	case StatusInProgress:
		return "In Progress"
	case StatusSuccess:
		return "Success"
	case StatusWarning:
		return "Warning"
	case StatusError:
		return "Error"
	}
	return string(s)
}

// ParseStatus decodes a wire token into a Status. Unknown tokens are an error;
// there is no default.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Event is the latest reported state of one task. TaskID is the identity key;
// ID is producer-assigned and may change between updates of the same task.
type Event struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	TaskID     string    `json:"task_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Status     Status    `json:"status"`
	Category   string    `json:"category"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
}

// Clone returns a copy of e that shares no state with it.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// IsUpcoming reports whether the producer-declared time lies after now.
func (e *Event) IsUpcoming(now time.Time) bool {
	return e.Timestamp.After(now)
}
