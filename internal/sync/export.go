package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string       `json:"type"`
	Data *model.Event `json:"data"`
}

// ExportJSONL writes a header line followed by one line per event to w.
// Events are sorted by task ID so unchanged timelines export identically
// apart from the header timestamp.
func ExportJSONL(events []*model.Event, w io.Writer, now time.Time) error {
	sorted := make([]*model.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TaskID < sorted[j].TaskID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  now.UTC(),
		EventCount: len(sorted),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range sorted {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("encode event %s: %w", e.TaskID, err)
		}
	}
	return nil
}
