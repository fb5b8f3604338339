package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/config"
	"github.com/alfredjeanlab/livetimeline/internal/idgen"
	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/queue"
	"github.com/spf13/cobra"
)

// wireEvent is the object shape producers put on the queue.
type wireEvent struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	Status    string `json:"status"`
	Category  string `json:"category,omitempty"`
	Timestamp string `json:"timestamp"`
}

var publishCmd = &cobra.Command{
	Use:               "publish",
	Short:             "Send a status event to the configured queue",
	GroupID:           "poller",
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		status, _ := cmd.Flags().GetString("status")
		agentID, _ := cmd.Flags().GetString("agent-id")
		taskID, _ := cmd.Flags().GetString("task-id")
		category, _ := cmd.Flags().GetString("category")
		in, _ := cmd.Flags().GetDuration("in")
		file, _ := cmd.Flags().GetString("settings")

		ev, err := buildWireEvent(title, body, status, agentID, taskID, category, time.Now().Add(in))
		if err != nil {
			return err
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}

		if file == "" {
			if file, err = config.DefaultSettingsPath(); err != nil {
				return err
			}
		}
		s, err := config.LoadSettings(file)
		if err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sender, err := queue.DialSender(ctx, s)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", s.Backend, err)
		}
		if c, ok := sender.(interface{ Close() error }); ok {
			defer c.Close()
		}
		if err := sender.Send(ctx, payload); err != nil {
			return fmt.Errorf("sending event: %w", err)
		}

		if jsonOutput {
			return printJSON(os.Stdout, ev)
		}
		fmt.Printf("Published %s (task %s)\n", ev.ID, ev.TaskID)
		return nil
	},
}

func init() {
	publishCmd.Flags().String("title", "", "event title (required)")
	publishCmd.Flags().String("body", "", "event body")
	publishCmd.Flags().String("status", string(model.StatusInfo), "info, in_progress, success, warning or error")
	publishCmd.Flags().String("agent-id", "cli", "reporting agent")
	publishCmd.Flags().String("task-id", "", "task to update (default: a new task id)")
	publishCmd.Flags().String("category", "", "event category")
	publishCmd.Flags().Duration("in", 0, "schedule the event this far in the future")
	publishCmd.Flags().String("settings", os.Getenv("TIMELINE_SETTINGS_FILE"), "settings file [$TIMELINE_SETTINGS_FILE] (default ~/.local/state/livetimeline/settings.toml)")
	_ = publishCmd.MarkFlagRequired("title")
}

// buildWireEvent assembles and validates a producer event. A missing task id
// starts a new task.
func buildWireEvent(title, body, status, agentID, taskID, category string, at time.Time) (*wireEvent, error) {
	st, err := model.ParseStatus(status)
	if err != nil {
		// Keep the raw value so validation names it.
		st = model.Status(status)
	}
	e := model.Event{
		AgentID:   agentID,
		TaskID:    taskID,
		Title:     title,
		Body:      body,
		Status:    st,
		Category:  category,
		Timestamp: at.UTC(),
	}
	if e.ID, err = idgen.EventID(); err != nil {
		return nil, err
	}
	if e.TaskID == "" {
		if e.TaskID, err = idgen.TaskID(); err != nil {
			return nil, err
		}
	}
	if err := model.ValidateEvent(&e); err != nil {
		return nil, err
	}
	return &wireEvent{
		ID:        e.ID,
		AgentID:   e.AgentID,
		TaskID:    e.TaskID,
		Title:     e.Title,
		Body:      e.Body,
		Status:    e.Status.String(),
		Category:  e.Category,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
	}, nil
}
