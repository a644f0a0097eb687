package logger

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kr/text"
	"github.com/mattn/go-runewidth"
)

// tickSummaryColumns pads the "N ready, M running" field so consecutive tick
// lines for a project line up when logged to a fixed-width terminal.
const tickSummaryColumns = 20

// formatTickSummary renders the ready/running counts padded to
// tickSummaryColumns display cells, accounting for the fact that the
// digits vary in width tick to tick. runewidth.FillRight pads by display
// width rather than byte count; for the ASCII counts padded here the two
// are the same. The project id is not part of the padded field.
func formatTickSummary(readyCount, runningCount int) string {
	counts := fmt.Sprintf("%d ready, %d running", readyCount, runningCount)
	return runewidth.FillRight(counts, tickSummaryColumns)
}

// wrapBody wraps a multi-line log body (error messages, plan step
// descriptions) to width columns and indents continuation lines so they
// stay visually attached to the log line that introduced them.
func wrapBody(body string, width int) string {
	if body == "" {
		return ""
	}
	wrapped := text.Wrap(body, width)
	lines := strings.Split(wrapped, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = "    " + lines[i]
	}
	return strings.Join(lines, "\n")
}

// colorForLevel returns the fatih/color attribute used for a log level's
// bracketed tag; ConsoleLogger's color formatter uses it when color output
// is enabled.
func colorForLevel(level string) *color.Color {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "INFO":
		return color.New(color.FgBlue)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}
