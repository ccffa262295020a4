package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nodestore/cql/clipboard"
)

const inspectHistoryLimit = 20

func (m Model) updateInspect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.resp != nil {
			_ = m.resp.Body.Close()
		}
		return m, tea.Quit
	case "q", "esc":
		m.view = viewList
		return m, nil
	case "c":
		row, ok := m.cursorRow()
		if !ok {
			return m, nil
		}
		_ = clipboard.Copy(context.Background(), row.host)
		return m, nil
	}
	return m, nil
}

func (m Model) inspectVisibleRows() int {
	return max(m.height-2, 3) // -2 for top/bottom border
}

func (m Model) renderInspector() string {
	innerWidth := max(m.width-4, 20)
	row, ok := m.cursorRow()
	if !ok {
		return ""
	}

	lines := m.inspectorLines(row)
	visibleRows := m.inspectVisibleRows()
	end := min(visibleRows, len(lines))
	content := strings.Join(lines[:end], "\n")

	borderColor := lipgloss.Color("240")
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(innerWidth).
		BorderForeground(borderColor).
		Render(content)

	boxLines := strings.Split(box, "\n")
	if len(boxLines) > 0 {
		borderFg := lipgloss.NewStyle().Foreground(borderColor)
		titleStyle := lipgloss.NewStyle().Bold(true)
		title := " Inspector "
		dashes := max(innerWidth-len([]rune(title)), 0)
		boxLines[0] = borderFg.Render("╭") +
			titleStyle.Render(title) +
			borderFg.Render(strings.Repeat("─", dashes)+"╮")
	}

	if n := len(boxLines); n > 0 {
		borderFg := lipgloss.NewStyle().Foreground(borderColor)
		help := " q: back  c: copy host "
		dashes := max(innerWidth-len([]rune(help)), 0)
		boxLines[n-1] = borderFg.Render("╰") +
			lipgloss.NewStyle().Faint(true).Render(help) +
			borderFg.Render(strings.Repeat("─", dashes)+"╯")
	}

	return strings.Join(boxLines, "\n")
}

func (m Model) inspectorLines(row nodeRow) []string {
	state := "DOWN"
	if row.up {
		state = "UP"
	}

	lines := []string{
		"Host:     " + row.host,
		"State:    " + state,
	}
	if row.current {
		lines = append(lines, "Routing:  current node")
	}

	lines = append(lines, "", "Recent status snapshots:")
	n := min(len(m.history), inspectHistoryLimit)
	for i := 0; i < n; i++ {
		h := m.history[i]
		hostState := "down"
		for _, a := range h.snap.Available {
			if a == row.host {
				hostState = "up"
				break
			}
		}
		lines = append(lines, fmt.Sprintf("  %s  v%d  %s", formatTime(h.at), h.snap.Version, hostState))
	}

	return lines
}
