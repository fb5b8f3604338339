package ui

import (
	"fmt"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent  = 74  // blue
	colorCmd     = 250 // light gray
	colorMuted   = 245 // medium gray
	colorInfo    = 74  // blue
	colorPending = 214 // orange
	colorSuccess = 114 // green
	colorWarning = 221 // yellow
	colorError   = 203 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderError returns s in the error (red) color.
func RenderError(s string) string { return render(colorError, s) }

// StatusColor returns the palette entry for a status.
func StatusColor(s model.Status) int {
	switch s {
	case model.StatusInProgress:
		return colorPending
	case model.StatusSuccess:
		return colorSuccess
	case model.StatusWarning:
		return colorWarning
	case model.StatusError:
		return colorError
	default:
		return colorInfo
	}
}

// RenderStatus returns the status label colored by status.
func RenderStatus(s model.Status) string {
	return render(StatusColor(s), s.Label())
}

// StatusIcon returns a one-character marker for s.
func StatusIcon(s model.Status) string {
	switch s {
	case model.StatusInProgress:
		return "◐"
	case model.StatusSuccess:
		return "✓"
	case model.StatusWarning:
		return "▲"
	case model.StatusError:
		return "✗"
	default:
		return "●"
	}
}

// SetColor enables or disables color output globally.
func SetColor(enabled bool) {
	noColor = !enabled
}
