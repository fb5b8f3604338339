package main

import (
	"os"

	"github.com/alfredjeanlab/livetimeline/internal/client"
	"github.com/alfredjeanlab/livetimeline/internal/ui"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	authToken  string
	jsonOutput bool

	timelineClient client.TimelineClient
)

func defaultServer() string {
	if s := os.Getenv("TIMELINE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:   "timeline <command>",
	Short: "Live timeline of agent status events",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.SetColor(false)
		}
		timelineClient = client.NewHTTPClient(serverURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if timelineClient != nil {
			timelineClient.Close()
		}
	},
	SilenceUsage: true,
}

// noClient replaces the root PersistentPreRunE for commands that do not talk
// to a running server.
func noClient(cmd *cobra.Command, args []string) error {
	if !ui.ShouldUseColor() {
		ui.SetColor(false)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "timeline server URL [$TIMELINE_SERVER]")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("TIMELINE_AUTH_TOKEN"), "bearer token for the timeline server [$TIMELINE_AUTH_TOKEN]")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "poller", Title: "Poller:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Views
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(watchCmd)

	// Poller
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(publishCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(settingsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
