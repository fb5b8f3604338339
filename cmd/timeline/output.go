package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/client"
	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printEventDetail(w io.Writer, e *model.Event) {
	fmt.Fprintf(w, "Task:        %s\n", e.TaskID)
	fmt.Fprintf(w, "ID:          %s\n", e.ID)
	fmt.Fprintf(w, "Agent:       %s\n", e.AgentID)
	fmt.Fprintf(w, "Status:      %s %s\n", ui.StatusIcon(e.Status), ui.RenderStatus(e.Status))
	fmt.Fprintf(w, "Title:       %s\n", e.Title)
	if e.Body != "" {
		fmt.Fprintf(w, "Body:        %s\n", e.Body)
	}
	if e.Category != "" {
		fmt.Fprintf(w, "Category:    %s\n", e.Category)
	}
	fmt.Fprintf(w, "Timestamp:   %s\n", e.Timestamp.Local().Format(timeLayout))
	if !e.ReceivedAt.IsZero() {
		fmt.Fprintf(w, "Received At: %s\n", e.ReceivedAt.Local().Format(timeLayout))
	}
}

// printEventTable writes events as aligned columns. Cells are padded before
// coloring so escape sequences do not skew the alignment.
func printEventTable(w io.Writer, events []*model.Event, total int, width int) {
	headers := []string{"STATUS", "TASK", "AGENT", "CATEGORY", "TIMESTAMP", "TITLE"}
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = []string{
			ui.StatusIcon(e.Status) + " " + e.Status.Label(),
			e.TaskID,
			e.AgentID,
			e.Category,
			e.Timestamp.Local().Format(timeLayout),
			e.Title,
		}
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = ui.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := ui.StringWidth(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	// The title column takes whatever room is left.
	used := 0
	for _, n := range widths[:len(widths)-1] {
		used += n + 2
	}
	titleWidth := width - used
	if titleWidth < 20 {
		titleWidth = 20
	}

	fmt.Fprintln(w, ui.RenderMuted(strings.TrimRight(formatRow(headers, widths), " ")))
	for i, row := range rows {
		row[len(row)-1] = ui.Truncate(row[len(row)-1], titleWidth)
		line := formatRow(row, widths)
		statusCell := ui.PadRight(row[0], widths[0])
		line = colorStatus(events[i].Status, statusCell) + line[len(statusCell):]
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	fmt.Fprintf(w, "\n%d events (%d total)\n", len(events), total)
}

func colorStatus(s model.Status, cell string) string {
	label := s.Label()
	return strings.Replace(cell, label, ui.RenderStatus(s), 1)
}

func formatRow(cells []string, widths []int) string {
	var b strings.Builder
	for i, c := range cells {
		if i == len(cells)-1 {
			b.WriteString(c)
			break
		}
		b.WriteString(ui.PadRight(c, widths[i]))
		b.WriteString("  ")
	}
	return b.String()
}

func printStatus(w io.Writer, st *client.StatusResponse) {
	polling := "no"
	if st.IsPolling {
		polling = "yes"
	}
	fmt.Fprintf(w, "State:       %s\n", st.State)
	fmt.Fprintf(w, "Polling:     %s\n", polling)
	fmt.Fprintf(w, "Events:      %d\n", st.Events)
	if st.LastError != "" {
		fmt.Fprintf(w, "Last Error:  %s\n", ui.RenderError(st.LastError))
	}
}

// printEventLine is the compact one-line form used by watch.
func printEventLine(w io.Writer, e *model.Event) {
	at := e.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Fprintf(w, "%s %s %s %s %s\n",
		ui.RenderMuted(at.Local().Format("15:04:05")),
		ui.StatusIcon(e.Status),
		ui.RenderStatus(e.Status),
		ui.RenderAccent(e.TaskID),
		e.Title,
	)
}
