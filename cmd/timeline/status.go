package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alfredjeanlab/livetimeline/internal/client"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the poller connection status",
	GroupID: "poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := timelineClient.Status(context.Background())
		if err != nil {
			return fmt.Errorf("getting status: %w", err)
		}
		return reportStatus(st)
	},
}

var startCmd = &cobra.Command{
	Use:     "start",
	Short:   "Start polling the configured queue",
	GroupID: "poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := timelineClient.StartPoller(context.Background())
		if err != nil {
			return fmt.Errorf("starting poller: %w", err)
		}
		return reportStatus(st)
	},
}

var stopCmd = &cobra.Command{
	Use:     "stop",
	Short:   "Stop polling",
	GroupID: "poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := timelineClient.StopPoller(context.Background())
		if err != nil {
			return fmt.Errorf("stopping poller: %w", err)
		}
		return reportStatus(st)
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the timeline server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := timelineClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(os.Stdout, map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Printf("Health: %s\n", status)
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func reportStatus(st *client.StatusResponse) error {
	if jsonOutput {
		return printJSON(os.Stdout, st)
	}
	printStatus(os.Stdout, st)
	return nil
}
