package tui

import (
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(time.Local).Format("15:04:05.000") //nolint:gosmopolitan // TUI displays local time
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

var reSpaces = regexp.MustCompile(`\s+`)

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return s[:maxLen]
	}
	return s[:maxLen-1] + "…"
}

// renderInputWithCursor renders a text input with a block cursor at the given rune position.
func renderInputWithCursor(text string, cursorPos int) string {
	runes := []rune(text)
	if cursorPos >= len(runes) {
		return text + "█"
	}
	return string(runes[:cursorPos]) + "█" + string(runes[cursorPos:])
}

func friendlyError(err error, width int) string {
	msg := err.Error()

	var text string
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "EOF"):
		text = "Could not reach cqlmon.\n" +
			"Is the monitor daemon running?\n\n" +
			"Error: " + msg
	}
	if text == "" {
		text = "Error: " + msg
	}

	return lipgloss.NewStyle().Width(width).Render(text)
}

// wrapFooterItems arranges items into lines that fit within the given width.
// Each line starts with "  " and items are separated by "  ".
func wrapFooterItems(items []string, width int) string {
	if width <= 0 {
		return "  " + strings.Join(items, "  ")
	}

	const prefix = "  "
	const sep = "  "

	var lines []string
	line := prefix

	for _, item := range items {
		switch {
		case line == prefix:
			line += item
		case len(line)+len(sep)+len(item) <= width:
			line += sep + item
		default:
			lines = append(lines, line)
			line = prefix + item
		}
	}
	if line != prefix {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
