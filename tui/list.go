package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column widths.
const (
	colMarker = 2 // "▶ "
	colState  = 6
	colMark   = 9 // "[current]"
)

func (m Model) renderList(maxRows int) string {
	rows := m.nodeRows()
	innerWidth := max(m.width-4, 20)
	colHost := max(innerWidth-colMarker-colState-colMark-3, 10)

	s := m.latest()
	title := fmt.Sprintf(" cqlmon (protocol v%d, %d/%d up) ", s.Version, len(s.Available), len(s.Available)+len(s.Unavailable))
	if m.filterQuery != "" {
		title = fmt.Sprintf(" cqlmon (%d/%d nodes) ", len(rows), len(s.Available)+len(s.Unavailable))
	}

	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(innerWidth)

	dataRows := max(maxRows-1, 1) // -1 for header row

	header := fmt.Sprintf("   %-*s %-*s %-*s",
		colHost, "Host",
		colState, "State",
		colMark, "",
	)

	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Render(header))

	end := min(dataRows, len(rows))
	for i := 0; i < end; i++ {
		lines = append(lines, m.renderNodeRow(rows[i], i, i == m.cursor, colHost))
	}
	if len(rows) == 0 {
		lines = append(lines, "  (no nodes match)")
	}

	borderColor := lipgloss.Color("240")
	border = border.BorderForeground(borderColor)
	content := strings.Join(lines, "\n")

	box := border.Render(content)
	boxLines := strings.Split(box, "\n")
	if len(boxLines) > 0 {
		borderFg := lipgloss.NewStyle().Foreground(borderColor)
		titleStyle := lipgloss.NewStyle().Bold(true)
		dashes := max(innerWidth-len([]rune(title)), 0)
		boxLines[0] = borderFg.Render("╭") +
			titleStyle.Render(title) +
			borderFg.Render(strings.Repeat("─", dashes)+"╮")
		box = strings.Join(boxLines, "\n")
	}

	return box
}

func (m Model) renderNodeRow(row nodeRow, idx int, isCursor bool, colHost int) string {
	marker := "  "
	if isCursor {
		marker = "▶ "
	}

	state := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("UP")
	if !row.up {
		state = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render("DOWN")
	}

	mark := ""
	if row.current {
		mark = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Render("[current]")
	}

	line := fmt.Sprintf("%s%s %s %s",
		marker,
		padRight(truncate(row.host, colHost), colHost),
		padRight(state, colState),
		mark,
	)

	if isCursor {
		return lipgloss.NewStyle().Bold(true).Render(line)
	}
	return line
}
