package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/alfredjeanlab/livetimeline/internal/client"
	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/ui"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the latest event per task",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		resp, err := timelineClient.ListEvents(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}

		events := resp.Events
		if filter.Upcoming != nil && *filter.Upcoming {
			sortUpcoming(events)
		}

		if jsonOutput {
			return printJSON(os.Stdout, resp)
		}
		printEventTable(os.Stdout, events, resp.Total, ui.TerminalWidth())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <task-id>",
	Short:   "Show the latest event for a task",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := timelineClient.GetEvent(context.Background(), args[0])
		if client.IsNotFound(err) {
			return fmt.Errorf("no event for task %q", args[0])
		}
		if err != nil {
			return fmt.Errorf("getting event: %w", err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, e)
		}
		printEventDetail(os.Stdout, e)
		return nil
	},
}

func init() {
	addFilterFlags(listCmd)
	listCmd.Flags().Int("limit", 50, "maximum number of events to return (0 = all)")
}

// addFilterFlags registers the flags read by filterFromFlags.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("status", "s", nil, "filter by status (repeatable: info, in_progress, success, warning, error)")
	cmd.Flags().StringP("search", "q", "", "case-insensitive search over title, body, agent and category")
	cmd.Flags().String("agent", "", "filter by agent id")
	cmd.Flags().String("category", "", "filter by category")
	cmd.Flags().Bool("upcoming", false, "only events scheduled in the future, soonest first")
	cmd.Flags().Bool("past", false, "only events at or before now")
	cmd.MarkFlagsMutuallyExclusive("upcoming", "past")
}

func filterFromFlags(cmd *cobra.Command) (model.EventFilter, error) {
	statuses, _ := cmd.Flags().GetStringSlice("status")
	search, _ := cmd.Flags().GetString("search")
	agent, _ := cmd.Flags().GetString("agent")
	category, _ := cmd.Flags().GetString("category")
	upcoming, _ := cmd.Flags().GetBool("upcoming")
	past, _ := cmd.Flags().GetBool("past")
	limit, _ := cmd.Flags().GetInt("limit")

	f := model.EventFilter{
		Search:   search,
		AgentID:  agent,
		Category: category,
		Limit:    limit,
	}
	for _, s := range statuses {
		st, err := model.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = append(f.Status, st)
	}
	switch {
	case upcoming:
		f.Upcoming = &upcoming
	case past:
		v := false
		f.Upcoming = &v
	}
	return f, nil
}

// sortUpcoming orders scheduled events soonest first.
func sortUpcoming(events []*model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
