package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/livetimeline/internal/ui"
	"github.com/spf13/cobra"
)

// Help output is plain cobra usage text with a few spans recoloured.
var (
	reGroupHeader = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`)     // "Views:", "Flags:"
	reCommand     = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)           // "  list   ..."
	reFlagType    = regexp.MustCompile(`(--?\S+\s+)(string|int|duration|strings)`)
	reDefault     = regexp.MustCompile(`\(default [^)]*\)`)
	reEnvVar      = regexp.MustCompile(`\[\$TIMELINE_[A-Z_]+\]`)
)

// colorizedHelpFunc renders usage into a buffer and recolours it when the
// terminal supports colour.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}

		out := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		defer cmd.SetOut(out)
		_ = cmd.Usage()
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	s = reGroupHeader.ReplaceAllStringFunc(s, func(match string) string {
		return ui.RenderAccent(strings.TrimSpace(match))
	})
	s = reCommand.ReplaceAllStringFunc(s, func(match string) string {
		parts := reCommand.FindStringSubmatch(match)
		if len(parts) == 4 {
			return parts[1] + ui.RenderCommand(parts[2]) + parts[3]
		}
		return match
	})
	s = reFlagType.ReplaceAllStringFunc(s, func(match string) string {
		parts := reFlagType.FindStringSubmatch(match)
		if len(parts) == 3 {
			return parts[1] + ui.RenderMuted(parts[2])
		}
		return match
	})
	s = reEnvVar.ReplaceAllStringFunc(s, ui.RenderAccent)
	return reDefault.ReplaceAllStringFunc(s, ui.RenderMuted)
}
