// Package tui renders a live terminal view of a running journalfwd instance,
// fed by its /events stream and /healthz endpoint.
package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/journalfwd/internal/events"
	"github.com/mattjoyce/journalfwd/internal/ingest"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusNeutral = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

const (
	maxStreams   = 100
	maxEventLog  = 50
	healthPeriod = 5 * time.Second
	retryPeriod  = 2 * time.Second
)

// --- Types ---

type streamRow struct {
	ID      string
	Entries int
	Bytes   int64
	Aborted bool
	Reason  string
	At      time.Time
}

type forwardCounts struct {
	Forwarded int
	Failed    int
	Dropped   int
}

type Model struct {
	baseURL string
	client  *http.Client

	width  int
	height int

	streams   []streamRow
	forward   forwardCounts
	eventLog  []events.Event
	hubEvents chan events.Event
	// lastEventID is sent as Last-Event-ID when the event stream reconnects.
	lastEventID int64

	health  ingest.HealthResponse
	lastErr error

	streamTable table.Model
	viewport    viewport.Model
}

type eventMsg events.Event
type healthMsg ingest.HealthResponse
type errMsg struct{ err error }

// streamClosedMsg reports the end of an /events subscription; err is nil
// when the server closed it cleanly.
type streamClosedMsg struct{ err error }
type resubscribeMsg struct{}

// --- Init ---

func NewMonitor(baseURL string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Stream", Width: 10},
			{Title: "Entries", Width: 8},
			{Title: "Bytes", Width: 10},
			{Title: "Reason", Width: 20},
			{Title: "At", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 2 * time.Second},
		hubEvents:   make(chan events.Event, 100),
		streamTable: t,
		viewport:    viewport.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.subscribeToEvents(),
		m.receiveNextEvent(),
		m.pollHealth(),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.streamTable.SetWidth(m.width - 6)
		m.viewport.Width = m.width - 6
		m.viewport.Height = m.height / 3
		m.viewport.SetContent(m.renderEvents())

	case eventMsg:
		if msg.ID <= m.lastEventID {
			return m, m.receiveNextEvent()
		}
		m.handleEvent(events.Event(msg))
		m.updateTable()
		m.viewport.SetContent(m.renderEvents())
		return m, m.receiveNextEvent()

	case healthMsg:
		m.health = ingest.HealthResponse(msg)
		m.lastErr = nil
		return m, tea.Tick(healthPeriod, func(time.Time) tea.Msg {
			return m.fetchHealth()
		})

	case errMsg:
		m.lastErr = msg.err
		return m, tea.Tick(healthPeriod, func(time.Time) tea.Msg {
			return m.fetchHealth()
		})

	case streamClosedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
		}
		return m, tea.Tick(retryPeriod, func(time.Time) tea.Msg {
			return resubscribeMsg{}
		})

	case resubscribeMsg:
		return m, m.subscribeToEvents()
	}

	m.streamTable, cmd = m.streamTable.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	if e.ID > m.lastEventID {
		m.lastEventID = e.ID
	}
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}

	switch e.Type {
	case events.StreamCompleted, events.StreamAborted:
		var resp ingest.UploadResponse
		if err := json.Unmarshal(e.Data, &resp); err != nil {
			return
		}
		row := streamRow{
			ID:      resp.StreamID,
			Entries: resp.Entries,
			Bytes:   resp.Bytes,
			Aborted: resp.Aborted,
			Reason:  resp.Reason,
			At:      e.At,
		}
		m.streams = append([]streamRow{row}, m.streams...)
		if len(m.streams) > maxStreams {
			m.streams = m.streams[:maxStreams]
		}
	case events.EntryForwarded:
		m.forward.Forwarded++
	case events.EntryFailed:
		m.forward.Failed++
	case events.EntryDropped:
		m.forward.Dropped++
	}
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.streams))
	for _, s := range m.streams {
		sym := statusOK.Render("●")
		if s.Aborted {
			sym = statusFailed.Render("∅")
		}
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, table.Row{
			sym,
			id,
			fmt.Sprintf("%d", s.Entries),
			fmt.Sprintf("%d", s.Bytes),
			s.Reason,
			s.At.Local().Format("15:04:05"),
		})
	}
	m.streamTable.SetRows(rows)
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	streams := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Upload Streams"),
			m.streamTable.View(),
		),
	)

	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.viewport.View(),
		),
	)

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [↑/↓] Scroll Streams")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			streams,
			eventsView,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	switch {
	case m.lastErr != nil:
		status = statusFailed.Render("UNREACHABLE")
	case m.health.Status == "":
		status = statusNeutral.Render("CONNECTING")
	case m.health.Status != "ok":
		status = statusWarn.Render("DEGRADED")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second
	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime.String()),
		fmt.Sprintf("Queue: %d/%d workers", m.health.QueueDepth, m.health.Workers),
		fmt.Sprintf("Streams: %d (%d active)", m.health.Streams, m.health.ActiveStreams),
		fmt.Sprintf("Fwd: %d ok %d err %d drop", m.forward.Forwarded, m.forward.Failed, m.forward.Dropped),
	}

	cols := make([]string, len(items))
	for i, item := range items {
		cols[i] = lipgloss.NewStyle().Width((m.width - 4) / len(items)).Render(item)
	}
	return borderStyle.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
}

func (m Model) renderEvents() string {
	var lines []string
	for _, e := range m.eventLog {
		ts := e.At.Local().Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-16s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

// --- Commands ---

// subscribeToEvents reads the SSE stream and feeds hubEvents until the
// stream ends, then reports streamClosedMsg so Update can reconnect.
func (m Model) subscribeToEvents() tea.Cmd {
	baseURL, lastID := m.baseURL, m.lastEventID
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/events", nil)
		if err != nil {
			return streamClosedMsg{err}
		}
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		// No client timeout: the stream is long-lived.
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return streamClosedMsg{err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return streamClosedMsg{fmt.Errorf("events endpoint returned status %d", resp.StatusCode)}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ev events.Event
				if err := json.Unmarshal([]byte(data), &ev); err == nil {
					m.hubEvents <- ev
				}
			}
		}
		return streamClosedMsg{scanner.Err()}
	}
}

func (m Model) receiveNextEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.hubEvents)
	}
}

func (m Model) pollHealth() tea.Cmd {
	return func() tea.Msg {
		return m.fetchHealth()
	}
}

func (m Model) fetchHealth() tea.Msg {
	resp, err := m.client.Get(m.baseURL + "/healthz")
	if err != nil {
		return errMsg{err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errMsg{fmt.Errorf("healthz returned status %d", resp.StatusCode)}
	}

	var h ingest.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg{err}
	}
	return healthMsg(h)
}
