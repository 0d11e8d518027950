package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bemfarelay/internal/client/events"
	"bemfarelay/internal/client/session"
)

// Version can be set at build time
var Version = "dev"

// SnapshotSource provides the current session counters.
type SnapshotSource interface {
	Snapshot() (session.Snapshot, bool)
}

// SwitchEntry is one switch change shown in the activity list.
type SwitchEntry struct {
	On     bool
	Source string
	Time   time.Time
}

// LogEntry is one log line shown under the activity list.
type LogEntry struct {
	Level   string
	Message string
}

// Model is the main Bubble Tea model
type Model struct {
	state      string
	switchOn   bool
	topic      string
	brokerAddr string
	network    string // "", "up", "down"
	backoff    *events.BackoffData

	source   SnapshotSource
	snap     session.Snapshot
	eventSub <-chan events.Event

	width     int
	height    int
	startTime time.Time

	statusAddr string

	switches    []SwitchEntry
	maxSwitches int
	logs        []LogEntry
	maxLogs     int

	lastError string
}

// NewModel creates a new TUI model
func NewModel(eventBus *events.Bus, source SnapshotSource, statusAddr string) Model {
	var eventSub <-chan events.Event
	if eventBus != nil {
		eventSub = eventBus.Subscribe()
	}

	return Model{
		state:       session.Idle.String(),
		source:      source,
		eventSub:    eventSub,
		startTime:   time.Now(),
		statusAddr:  statusAddr,
		maxSwitches: 8,
		maxLogs:     5,
	}
}

// Messages
type tickMsg time.Time
type eventMsg events.Event

// Commands
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		if sub == nil {
			return nil
		}
		event, ok := <-sub
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if m.eventSub != nil {
		cmds = append(cmds, waitForEvent(m.eventSub))
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.source != nil {
			if snap, ok := m.source.Snapshot(); ok {
				m.snap = snap
				if m.topic == "" {
					m.topic = snap.Topic
				}
			}
		}
		return m, tickCmd()

	case eventMsg:
		m = m.handleEvent(events.Event(msg))
		return m, waitForEvent(m.eventSub)
	}

	return m, nil
}

func (m Model) handleEvent(event events.Event) Model {
	switch event.Type {
	case events.EventStateChanged:
		if data, ok := event.Data.(events.StateData); ok {
			m.state = data.To
			if data.To == session.Listening.String() {
				m.backoff = nil
			}
		}

	case events.EventConnected:
		if data, ok := event.Data.(events.ConnectedData); ok {
			m.brokerAddr = data.BrokerAddr
			m.topic = data.Topic
		}

	case events.EventDisconnected:
		m.brokerAddr = ""

	case events.EventBackoff:
		if data, ok := event.Data.(events.BackoffData); ok {
			m.backoff = &data
		}

	case events.EventSwitchChanged:
		if data, ok := event.Data.(events.SwitchData); ok {
			m.switchOn = data.On
			entry := SwitchEntry{On: data.On, Source: data.Source, Time: event.Timestamp}
			if entry.Time.IsZero() {
				entry.Time = time.Now()
			}
			// Prepend (newest first)
			m.switches = append([]SwitchEntry{entry}, m.switches...)
			if len(m.switches) > m.maxSwitches {
				m.switches = m.switches[:m.maxSwitches]
			}
		}

	case events.EventNetworkChanged:
		if data, ok := event.Data.(events.NetworkData); ok {
			m.network = "down"
			if data.Available {
				m.network = "up"
			}
		}

	case events.EventError:
		if data, ok := event.Data.(events.ErrorData); ok {
			m.lastError = fmt.Sprintf("%s: %v", data.Context, data.Error)
		}

	case events.EventLog:
		if data, ok := event.Data.(events.LogData); ok {
			m.logs = append(m.logs, LogEntry{Level: data.Level, Message: data.Message})
			if len(m.logs) > m.maxLogs {
				m.logs = m.logs[len(m.logs)-m.maxLogs:]
			}
		}
	}

	return m
}

// View renders the model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n")

	b.WriteString(m.renderCounters())
	b.WriteString("\n")

	if len(m.switches) > 0 {
		b.WriteString(m.renderSwitches())
		b.WriteString("\n")
	}

	if len(m.logs) > 0 {
		b.WriteString(m.renderLogs())
	}

	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("bemfa-relay")
	hint := hintStyle.Render("(Ctrl+C to quit)")

	spacing := strings.Repeat(" ", 40)
	if m.width > 0 {
		spaces := m.width - lipgloss.Width(title) - lipgloss.Width(hint)
		spacing = ""
		if spaces > 0 {
			spacing = strings.Repeat(" ", spaces)
		}
	}

	return title + spacing + hint
}

func (m Model) renderStatus() string {
	var lines []string

	lines = append(lines, m.renderField("Session", StateText(m.state)))
	lines = append(lines, m.renderField("Switch", SwitchText(m.switchOn)))
	lines = append(lines, m.renderField("Topic", orDash(m.topic)))

	broker := "-"
	if m.brokerAddr != "" {
		broker = urlStyle.Render(m.brokerAddr)
	}
	lines = append(lines, m.renderField("Broker", broker))

	if m.network != "" {
		lines = append(lines, m.renderField("Network", NetworkText(m.network == "up")))
	}
	if m.backoff != nil {
		text := fmt.Sprintf("%d failures, retry in %v", m.backoff.Failures, m.backoff.Delay)
		lines = append(lines, m.renderField("Backoff", statusConnectingStyle.Render(text)))
	}
	if m.lastError != "" {
		lines = append(lines, m.renderField("Last Error", errorStyle.Render(truncate(m.lastError, 60))))
	}

	lines = append(lines, m.renderField("Version", Version))
	lines = append(lines, m.renderField("Uptime", formatUptime(time.Since(m.startTime))))
	if m.statusAddr != "" {
		lines = append(lines, m.renderField("Status API", urlStyle.Render("http://"+m.statusAddr+"/api/status")))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderField(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func (m Model) renderCounters() string {
	var lines []string
	lines = append(lines, "")

	headers := []string{"ticks", "fails", "conns", "push"}
	headerRow := labelStyle.Render("Counters")
	for _, h := range headers {
		headerRow += statsHeaderStyle.Render(h)
	}
	lines = append(lines, headerRow)

	valueRow := labelStyle.Render("")
	for _, v := range []uint64{m.snap.Ticks, m.snap.Failures, m.snap.Connects, m.snap.Pushes} {
		valueRow += statsValueStyle.Render(fmt.Sprintf("%d", v))
	}
	lines = append(lines, valueRow)

	return strings.Join(lines, "\n")
}

func (m Model) renderSwitches() string {
	var lines []string
	lines = append(lines, "")
	lines = append(lines, labelStyle.Render("Switch Activity"))

	for _, s := range m.switches {
		line := fmt.Sprintf("%s %s %s",
			durationStyle.Render(s.Time.Format("15:04:05")),
			SwitchText(s.On),
			durationStyle.Render(s.Source))
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderLogs() string {
	var lines []string
	lines = append(lines, "")
	lines = append(lines, labelStyle.Render("Log"))
	for _, l := range m.logs {
		lines = append(lines, LevelText(l.Level)+" "+valueStyle.Render(truncate(l.Message, 80)))
	}
	return strings.Join(lines, "\n")
}

// Helper functions

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, mins, secs)
	}
	return fmt.Sprintf("%dm%02ds", mins, secs)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// Run starts the TUI application
func Run(eventBus *events.Bus, source SnapshotSource, statusAddr string) error {
	model := NewModel(eventBus, source, statusAddr)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
