package sync

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	if err := ExportJSONL(nil, &buf, now); err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Type != "header" || h.Version != "1" || h.EventCount != 0 || !h.Timestamp.Equal(now) {
		t.Fatalf("header = %+v", h)
	}
}

func TestExportJSONL_SortedByTask(t *testing.T) {
	received := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	events := []*model.Event{
		{ID: "e3", AgentID: "a", TaskID: "zeta", Title: "Z", Status: model.StatusWarning, ReceivedAt: received},
		{ID: "e1", AgentID: "a", TaskID: "alpha", Title: "A <b>", Status: model.StatusInfo, ReceivedAt: received},
		{ID: "e2", AgentID: "b", TaskID: "mid", Title: "M", Status: model.StatusError, Category: "ops", ReceivedAt: received},
	}

	var buf bytes.Buffer
	if err := ExportJSONL(events, &buf, received); err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	if events[0].TaskID != "zeta" {
		t.Fatal("ExportJSONL reordered the caller's slice")
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.EventCount != 3 {
		t.Errorf("event_count = %d, want 3", h.EventCount)
	}

	for i, want := range []string{"alpha", "mid", "zeta"} {
		var rec struct {
			Type string      `json:"type"`
			Data model.Event `json:"data"`
		}
		if err := json.Unmarshal([]byte(lines[i+1]), &rec); err != nil {
			t.Fatalf("unmarshal line %d: %v", i+1, err)
		}
		if rec.Type != "event" || rec.Data.TaskID != want {
			t.Errorf("line %d = %s/%s, want event/%s", i+1, rec.Type, rec.Data.TaskID, want)
		}
	}

	if !strings.Contains(lines[1], `"title":"A <b>"`) {
		t.Errorf("HTML should not be escaped: %s", lines[1])
	}
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
