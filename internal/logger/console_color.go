package logger

import (
	"github.com/fatih/color"

	"github.com/zenhq/zen/internal/models"
)

// colorScheme defines consistent colors for different metric types.
// Green: success/positive metrics
// Red: failure/error metrics
// Yellow: warning/threshold metrics
// Cyan: labels and identifiers
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	value   *color.Color
}

// newColorScheme creates the standard color scheme for metrics.
func newColorScheme() *colorScheme {
	return &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		value:   color.New(color.FgWhite),
	}
}

// colorizeStatus wraps text in the color matching a task status: green for
// completed, red for failed, yellow for cancelled; any other status is
// returned uncolored.
func colorizeStatus(text string, status string) string {
	switch status {
	case models.StatusCompleted:
		return color.New(color.FgGreen).Sprint(text)
	case models.StatusFailed:
		return color.New(color.FgRed).Sprint(text)
	case models.StatusCancelled:
		return color.New(color.FgYellow).Sprint(text)
	default:
		return text
	}
}
