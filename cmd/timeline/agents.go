package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/presence"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:     "agents",
	Short:   "List reporting agents and what they last reported",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		active, _ := cmd.Flags().GetDuration("active")

		agents, err := timelineClient.Agents(context.Background(), active)
		if err != nil {
			return fmt.Errorf("listing agents: %w", err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, agents)
		}
		printAgentTable(os.Stdout, agents)
		return nil
	},
}

func init() {
	agentsCmd.Flags().Duration("active", 0, "only agents heard from within this long (0 = all)")
}

func printAgentTable(out io.Writer, agents []presence.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tLAST STATUS\tLAST TASK\tTASKS\tIDLE")
	for _, a := range agents {
		idle := (time.Duration(a.IdleSecs) * time.Second).Round(time.Second).String()
		if a.Idle {
			idle += " (idle)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", a.AgentID, a.LastStatus.Label(), a.LastTaskID, a.Tasks, idle)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d agents\n", len(agents))
}
