// Package tui is a terminal companion display: it subscribes to the bridge's
// WebSocket feed and shows live telemetry, the active session, and today's
// leaderboard. Read-only; session control stays with the web UI and the API.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"wattbridge/internal/session"
	"wattbridge/internal/store"
)

// telemetryFrame is the hub's passthrough telemetry event.
type telemetryFrame struct {
	Channel  string   `json:"channel"`
	TS       int64    `json:"t"`
	PowerW   *float64 `json:"power"`
	Cadence  *float64 `json:"cadence"`
	SpeedKPH *float64 `json:"speedKph"`
}

// currentMsg carries one poll of the active-session endpoint.
type currentMsg struct {
	snap   *session.Snapshot
	autoMS int64
	err    error
}

type boardMsg struct {
	board *store.Leaderboard
	err   error
}

type tickMsg time.Time

// WatchModel is the root Bubble Tea model for the watch command.
type WatchModel struct {
	serverURL string // http://host:port
	wsURL     string
	client    *http.Client

	feed      *feedConn
	connected bool
	lastErr   error

	telemetry   *telemetryFrame
	telemetryAt time.Time
	powerHist   []float64

	current   *session.Snapshot
	autoMS    int64
	autoTotal int64 // highest auto_ms seen for the current session

	lastEnded *session.EndedInfo
	board     *store.Leaderboard

	width int
}

// NewWatch builds a watch model for the given server base URL.
func NewWatch(serverURL string) WatchModel {
	serverURL = strings.TrimRight(serverURL, "/")
	wsURL := strings.Replace(serverURL, "http", "ws", 1) + "/ws"
	return WatchModel{
		serverURL: serverURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// RunWatch runs the watch UI until the user quits.
func RunWatch(serverURL string) error {
	p := tea.NewProgram(NewWatch(serverURL), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init connects the feed and kicks off the first poll.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(dialFeed(m.wsURL), m.pollCurrent, m.fetchBoard, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m WatchModel) pollCurrent() tea.Msg {
	var body struct {
		Session *session.Snapshot `json:"session"`
		AutoMS  int64             `json:"auto_ms"`
	}
	if err := m.getJSON("/api/session/current", &body); err != nil {
		return currentMsg{err: err}
	}
	return currentMsg{snap: body.Session, autoMS: body.AutoMS}
}

func (m WatchModel) fetchBoard() tea.Msg {
	var board store.Leaderboard
	if err := m.getJSON("/api/leaderboard/today", &board); err != nil {
		return boardMsg{err: err}
	}
	return boardMsg{board: &board}
}

func (m WatchModel) getJSON(path string, v any) error {
	resp, err := m.client.Get(m.serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Update handles messages.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.feed != nil {
				m.feed.close()
			}
			return m, tea.Quit
		case "r":
			return m, m.fetchBoard
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case feedConnectedMsg:
		m.feed = msg.feed
		m.connected = true
		m.lastErr = nil
		return m, waitFrame(m.feed)

	case feedErrMsg:
		m.connected = false
		m.feed = nil
		m.lastErr = msg.err

	case frameMsg:
		m.applyFrame(frame(msg))
		return m, waitFrame(m.feed)

	case currentMsg:
		if msg.err == nil {
			m.current = msg.snap
			m.autoMS = msg.autoMS
			if msg.autoMS > m.autoTotal {
				m.autoTotal = msg.autoMS
			}
			if msg.snap == nil {
				m.autoTotal = 0
			}
		}

	case boardMsg:
		if msg.err == nil {
			m.board = msg.board
		}

	case tickMsg:
		cmds := []tea.Cmd{tick(), m.pollCurrent}
		if !m.connected {
			cmds = append(cmds, dialFeed(m.wsURL))
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *WatchModel) applyFrame(fr frame) {
	switch fr.Type {
	case "telemetry":
		var t telemetryFrame
		if json.Unmarshal(fr.Data, &t) == nil {
			m.telemetry = &t
			m.telemetryAt = time.Now()
			if t.PowerW != nil {
				m.powerHist = append(m.powerHist, *t.PowerW)
				if len(m.powerHist) > 120 {
					m.powerHist = m.powerHist[len(m.powerHist)-120:]
				}
			}
		}
	case "session_start":
		var info session.StartInfo
		if json.Unmarshal(fr.Data, &info) == nil {
			m.lastEnded = nil
			m.autoMS = info.AutoMS
			if info.AutoMS > m.autoTotal {
				m.autoTotal = info.AutoMS
			}
		}
	case "session_end":
		var ended session.EndedInfo
		if json.Unmarshal(fr.Data, &ended) == nil {
			m.lastEnded = &ended
			m.current = nil
			m.autoMS = 0
			m.autoTotal = 0
		}
	case "leaderboard":
		var board store.Leaderboard
		if json.Unmarshal(fr.Data, &board) == nil {
			m.board = &board
		}
	}
}

// View renders the display.
func (m WatchModel) View() string {
	header := headerStyle.Render("WattBridge Live")

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderTelemetryCard(), "  ", m.renderSessionCard())

	sections := []string{header, top}
	if chart := m.renderPowerChart(); chart != "" {
		sections = append(sections, chart)
	}
	if board := m.renderBoardCard(); board != "" {
		sections = append(sections, board)
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m WatchModel) renderTelemetryCard() string {
	title := cardTitleStyle.Render("Telemetry")

	power, cadence, speed := "-", "-", "-"
	if t := m.telemetry; t != nil && time.Since(m.telemetryAt) < 10*time.Second {
		if t.PowerW != nil {
			power = powerStyle.Render(fmt.Sprintf("%.0f W", *t.PowerW))
		}
		if t.Cadence != nil {
			cadence = fmt.Sprintf("%.0f rpm", *t.Cadence)
		}
		if t.SpeedKPH != nil {
			speed = fmt.Sprintf("%.1f km/h", *t.SpeedKPH)
		}
	}

	lines := []string{
		renderMetric("Power", power),
		renderMetric("Cadence", cadence),
		renderMetric("Speed", speed),
	}
	content := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return cardStyle.Width(32).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

func (m WatchModel) renderSessionCard() string {
	title := cardTitleStyle.Render("Session")

	if m.current == nil {
		body := "No active session"
		if m.lastEnded != nil {
			body = lipgloss.JoinVertical(lipgloss.Left,
				statusStyle.Render("Last session ("+string(m.lastEnded.Reason)+")"),
				renderMetric("Rider", displayName(m.lastEnded.Name)),
				renderMetric("Total", fmt.Sprintf("%.1f Wh", m.lastEnded.TotalWh)),
				renderMetric("Best 60 s", fmt.Sprintf("%.1f Wh", m.lastEnded.BestWh60)),
				renderMetric("Peak", fmt.Sprintf("%.0f W", m.lastEnded.PeakW)),
			)
		}
		return cardStyle.Width(44).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	elapsed := time.Since(time.UnixMilli(m.current.StartTS)).Truncate(time.Second)
	lines := []string{
		renderMetric("Rider", displayName(m.current.Name)),
		renderMetric("Elapsed", elapsed.String()),
		renderMetric("Total", fmt.Sprintf("%.1f Wh", m.current.TotalWh)),
		renderMetric("Best 60 s", fmt.Sprintf("%.1f Wh", m.current.BestWh60)),
		renderMetric("Peak", fmt.Sprintf("%.0f W", m.current.PeakW)),
	}

	if m.autoMS > 0 && m.autoTotal > 0 {
		remaining := time.Duration(m.autoMS) * time.Millisecond
		bar := renderProgressBar(float64(m.autoMS)/float64(m.autoTotal), 24)
		lines = append(lines, "",
			statusStyle.Render(fmt.Sprintf("Auto-end in %s", remaining.Truncate(time.Second))),
			bar)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return cardStyle.Width(44).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

func (m WatchModel) renderPowerChart() string {
	if len(m.powerHist) < 3 {
		return ""
	}
	title := cardTitleStyle.Render("Power - Recent")

	graph := asciigraph.Plot(m.powerHist,
		asciigraph.Height(6),
		asciigraph.Width(60),
		asciigraph.Precision(0),
	)
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, graph))
}

func (m WatchModel) renderBoardCard() string {
	if m.board == nil {
		return ""
	}
	title := cardTitleStyle.Render("Today's Best 60 s")

	header := tableHeaderStyle.Render(fmt.Sprintf("%-3s %-18s %9s %7s", "", "Name", "Wh/60s", "Peak W"))
	rows := []string{header}
	rows = appendBoardRows(rows, "W", m.board.WomenWh60)
	rows = appendBoardRows(rows, "M", m.board.MenWh60)
	if len(rows) == 1 {
		rows = append(rows, tableRowStyle.Render("No finished sessions yet"))
	}

	table := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, table))
}

func appendBoardRows(rows []string, tag string, entries []store.LeaderboardEntry) []string {
	for i, e := range entries {
		if i >= 3 {
			break
		}
		rows = append(rows, tableRowStyle.Render(fmt.Sprintf("%-3s %-18s %9.1f %7.0f",
			tag, truncateName(displayName(e.Name), 18), e.BestWh60, e.PeakW)))
	}
	return rows
}

func (m WatchModel) renderFooter() string {
	status := "connected"
	if !m.connected {
		status = errorStyle.Render("reconnecting")
		if m.lastErr != nil {
			status += statusStyle.Render(" (" + m.lastErr.Error() + ")")
		}
	}
	return statusStyle.Render(fmt.Sprintf("%s  ·  [r] refresh board  [q] quit", status))
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Anonymous"
	}
	return name
}

func truncateName(s string, max int) string {
	// Rider names can carry multi-byte runes; never cut one in half.
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
