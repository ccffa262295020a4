package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nodestore/cql/clipboard"
)

type viewMode int

const (
	viewList viewMode = iota
	viewInspect
)

// snapshot mirrors the JSON body a monitor HTTP server emits for a
// cluster's current membership and routing status.
type snapshot struct {
	Version     uint8    `json:"version"`
	CurrentNode string   `json:"current_node"`
	Available   []string `json:"available"`
	Unavailable []string `json:"unavailable"`
}

// historyEntry pairs a received snapshot with the time it arrived, so
// the inspector can show how long ago the latest status changed.
type historyEntry struct {
	at   time.Time
	snap snapshot
}

// Model is the Bubble Tea model for the cqlmon TUI.
type Model struct {
	target string
	client *http.Client
	resp   *http.Response
	reader *bufio.Reader

	history []historyEntry
	cursor  int
	follow  bool
	width   int
	height  int
	err     error
	view    viewMode

	filterMode   bool
	filterQuery  string
	filterCursor int
}

// connectedMsg is sent once the SSE stream to the monitor server is open.
type connectedMsg struct {
	resp   *http.Response
	reader *bufio.Reader
}

// snapshotMsg carries one cluster status snapshot read off the SSE stream.
type snapshotMsg struct{ snap snapshot }

// errMsg carries an error from the HTTP connection or stream.
type errMsg struct{ Err error }

// New creates a new Model pointed at a cqlmon monitor server's base URL,
// e.g. "http://127.0.0.1:8088".
func New(target string) Model {
	return Model{
		target: strings.TrimRight(target, "/"),
		client: &http.Client{},
		follow: true,
	}
}

// Init opens the SSE connection to the monitor server.
func (m Model) Init() tea.Cmd {
	return connect(m.client, m.target)
}

func connect(client *http.Client, target string) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.Get(target + "/api/events")
		if err != nil {
			return errMsg{Err: fmt.Errorf("dial %s: %w", target, err)}
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return errMsg{Err: fmt.Errorf("dial %s: unexpected status %s", target, resp.Status)}
		}
		return connectedMsg{resp: resp, reader: bufio.NewReader(resp.Body)}
	}
}

func recvSnapshot(reader *bufio.Reader) tea.Cmd {
	return func() tea.Msg {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return errMsg{Err: err}
			}
			data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: ")
			if !ok {
				continue // blank line, comment, or event: field
			}
			var s snapshot
			if err := json.Unmarshal([]byte(data), &s); err != nil {
				return errMsg{Err: fmt.Errorf("decode snapshot: %w", err)}
			}
			return snapshotMsg{snap: s}
		}
	}
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case connectedMsg:
		m.resp = msg.resp
		m.reader = msg.reader
		return m, recvSnapshot(msg.reader)

	case snapshotMsg:
		m.history = append([]historyEntry{{at: timeNow(), snap: msg.snap}}, m.history...)
		if m.follow {
			m.cursor = 0
		}
		return m, recvSnapshot(m.reader)

	case errMsg:
		m.err = msg.Err
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case viewInspect:
			return m.updateInspect(msg)
		case viewList:
			return m.updateList(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}
	return m, nil
}

// timeNow is a seam so tests can drive historyEntry timestamps deterministically.
var timeNow = time.Now

// latest returns the most recently received snapshot, or the zero value
// if none has arrived yet.
func (m Model) latest() snapshot {
	if len(m.history) == 0 {
		return snapshot{}
	}
	return m.history[0].snap
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	if m.err != nil {
		return friendlyError(m.err, m.width)
	}

	if len(m.history) == 0 {
		return "Waiting for cluster status..."
	}

	switch m.view {
	case viewInspect:
		return m.renderInspector()
	case viewList:
	}

	var footer string
	if m.filterMode {
		footer = "  filter: " + renderInputWithCursor(m.filterQuery, m.filterCursor)
	} else {
		items := []string{"q: quit", "j/k: navigate", "enter: inspect", "c: copy host", "/: filter", "esc: clear"}
		footer = wrapFooterItems(items, m.width)
		if m.filterQuery != "" {
			footer += "  esc: clear"
		}
	}

	return strings.Join([]string{
		m.renderList(m.listHeight()),
		footer,
	}, "\n")
}

func (m Model) listHeight() int {
	return max(m.height-6, 3)
}

type nodeRow struct {
	host    string
	up      bool
	current bool
}

// nodeRows returns the current node table — available hosts first, then
// unavailable ones — filtered by filterQuery against the host string.
func (m Model) nodeRows() []nodeRow {
	s := m.latest()
	var rows []nodeRow
	for _, host := range s.Available {
		rows = append(rows, nodeRow{host: host, up: true, current: host == s.CurrentNode})
	}
	for _, host := range s.Unavailable {
		rows = append(rows, nodeRow{host: host, up: false})
	}
	if m.filterQuery == "" {
		return rows
	}
	q := strings.ToLower(m.filterQuery)
	var filtered []nodeRow
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.host), q) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterMode {
		return m.updateFilter(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		if m.resp != nil {
			_ = m.resp.Body.Close()
		}
		return m, tea.Quit
	case "enter":
		if len(m.nodeRows()) > 0 {
			m.view = viewInspect
		}
		return m, nil
	case "c":
		return m.copyHost(), nil
	case "/":
		m.filterMode = true
		m.filterQuery = ""
		m.filterCursor = 0
		return m, nil
	case "esc":
		m.filterQuery = ""
		m.cursor = 0
		return m, nil
	case "j", "down":
		return m.navigateCursor(1), nil
	case "k", "up":
		return m.navigateCursor(-1), nil
	}
	return m, nil
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filterMode = false
		return m, nil
	case "esc":
		m.filterMode = false
		m.filterQuery = ""
		m.cursor = 0
		return m, nil
	case "backspace":
		if m.filterCursor > 0 {
			runes := []rune(m.filterQuery)
			m.filterQuery = string(runes[:m.filterCursor-1]) + string(runes[m.filterCursor:])
			m.filterCursor--
			m.cursor = 0
		}
		return m, nil
	case "ctrl+c":
		if m.resp != nil {
			_ = m.resp.Body.Close()
		}
		return m, tea.Quit
	case "left":
		if m.filterCursor > 0 {
			m.filterCursor--
		}
		return m, nil
	case "right":
		if m.filterCursor < len([]rune(m.filterQuery)) {
			m.filterCursor++
		}
		return m, nil
	}

	r := msg.Runes
	if len(r) == 0 {
		return m, nil
	}
	runes := []rune(m.filterQuery)
	m.filterQuery = string(runes[:m.filterCursor]) + string(r) + string(runes[m.filterCursor:])
	m.filterCursor += len(r)
	m.cursor = 0
	return m, nil
}

func (m Model) navigateCursor(delta int) Model {
	rows := m.nodeRows()
	if len(rows) == 0 {
		return m
	}
	m.cursor = min(max(m.cursor+delta, 0), len(rows)-1)
	m.follow = m.cursor == 0
	return m
}

func (m Model) cursorRow() (nodeRow, bool) {
	rows := m.nodeRows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return nodeRow{}, false
	}
	return rows[m.cursor], true
}

func (m Model) copyHost() Model {
	row, ok := m.cursorRow()
	if !ok {
		return m
	}
	_ = clipboard.Copy(context.Background(), row.host)
	return m
}
