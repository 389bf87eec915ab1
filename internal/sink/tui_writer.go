package sink

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"heartbeat-sim/internal/heartbeat"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// Controls lets the TUI drive the probe target's fault injection.
type Controls struct {
	ToggleChaos      func() bool
	SetFailureChance func(float64) error
}

// logMsg carries a rendered line for the viewport.
type logMsg struct{ line string }

type probeMsg struct{ heartbeat.ProbeRow }

type escalationMsg struct{ heartbeat.EscalationRow }

type connectionMsg struct{ heartbeat.ConnectionRow }

type adminMsg struct{ active bool }

type setControlsMsg struct{ c Controls }

const maxLogLines = 1000

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9")).Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	critStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TUIWriter renders heartbeat rows using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. When the user
// quits the TUI the process receives an interrupt.
func NewTUIWriter(overview *Overview) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(overview), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteProbe implements ProbeWriter.
func (w *TUIWriter) WriteProbe(row heartbeat.ProbeRow) error {
	w.program.Send(logMsg{line: colorProbeLine(row)})
	w.program.Send(probeMsg{row})
	return nil
}

// WriteEscalation implements EscalationWriter.
func (w *TUIWriter) WriteEscalation(row heartbeat.EscalationRow) error {
	w.program.Send(logMsg{line: colorEscalationLine(row)})
	w.program.Send(escalationMsg{row})
	return nil
}

// WriteConnection implements ConnectionWriter.
func (w *TUIWriter) WriteConnection(row heartbeat.ConnectionRow) error {
	w.program.Send(logMsg{line: colorConnectionLine(row)})
	w.program.Send(connectionMsg{row})
	return nil
}

// Write implements io.Writer so slog output lands in the log viewport instead
// of tearing the alternate screen.
func (w *TUIWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		w.program.Send(logMsg{line: helpStyle.Render(line)})
	}
	return len(p), nil
}

// SetAdminStatus updates the admin server indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// SetControls enables the chaos and failure chance keys.
func (w *TUIWriter) SetControls(c Controls) {
	w.program.Send(setControlsMsg{c: c})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	overview     *Overview
	table        table.Model
	vp           viewport.Model
	input        textinput.Model
	inputOpen    bool
	inputErr     string
	controls     Controls
	logs         []string
	wrap         bool
	autoscroll   bool
	help         bool
	admin        bool
	header       string
	headerHeight int
	height       int

	last        *heartbeat.ProbeRow
	escalation  *heartbeat.EscalationRow
	outcomes    map[string]int
	actions     map[string]int
	chaos       bool
	chance      float64
	haveTarget  bool
	cycles      int
	connections int
}

func newTUIModel(overview *Overview) tuiModel {
	cols := []table.Column{
		{Title: "Setting", Width: 22},
		{Title: "Value", Width: 24},
	}
	var rows []table.Row
	if overview != nil {
		for _, it := range overview.Items {
			rows = append(rows, table.Row{it[0], it[1]})
		}
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	ti := textinput.New()
	ti.Placeholder = "0.2"
	ti.CharLimit = 8
	return tuiModel{
		overview:   overview,
		table:      t,
		vp:         viewport.New(0, 0),
		input:      ti,
		autoscroll: true,
		outcomes:   make(map[string]int),
		actions:    make(map[string]int),
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.refreshHeader()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.inputOpen {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshHeader()
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "?":
			m.help = !m.help
			m.updateViewportHeight()
		case "c":
			if m.controls.ToggleChaos != nil {
				m.chaos = m.controls.ToggleChaos()
				m.refreshHeader()
			}
		case "f":
			if m.controls.SetFailureChance != nil {
				m.inputOpen = true
				m.inputErr = ""
				m.input.SetValue("")
				m.updateViewportHeight()
				return m, m.input.Focus()
			}
		default:
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case probeMsg:
		row := msg.ProbeRow
		m.last = &row
		m.cycles++
		m.outcomes[row.Outcome]++
		m.refreshHeader()
	case escalationMsg:
		row := msg.EscalationRow
		m.escalation = &row
		m.refreshHeader()
	case connectionMsg:
		m.connections++
		m.actions[msg.Action]++
		m.chaos = msg.Chaos
		m.chance = msg.FailureChance
		m.haveTarget = true
		m.refreshHeader()
	case adminMsg:
		m.admin = msg.active
		m.refreshHeader()
	case setControlsMsg:
		m.controls = msg.c
	}
	return m, nil
}

func (m tuiModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		v, err := strconv.ParseFloat(strings.TrimSpace(m.input.Value()), 64)
		if err == nil {
			err = m.controls.SetFailureChance(v)
		}
		if err != nil {
			m.inputErr = err.Error()
			return m, nil
		}
		m.chance = v
		m.inputOpen = false
		m.input.Blur()
		m.refreshHeader()
	case tea.KeyEsc:
		m.inputOpen = false
		m.input.Blur()
		m.updateViewportHeight()
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *tuiModel) refreshHeader() {
	m.header = m.renderHeader()
	m.headerHeight = lipgloss.Height(m.header)
	m.updateViewportHeight()
}

func (m *tuiModel) renderHeader() string {
	title := "heartbeat-sim"
	if m.overview != nil && m.overview.Role != "" {
		title += " " + m.overview.Role
	}
	if m.admin {
		title += " " + okStyle.Render("[admin]")
	}
	parts := []string{titleStyle.Render(title)}
	if len(m.table.Rows()) > 0 {
		parts = append(parts, m.table.View())
	}

	if m.last != nil {
		style := okStyle
		if m.last.ConsecutiveFailures > 0 {
			style = warnStyle
		}
		if m.last.ConsecutiveFailures >= m.last.MaxFailures {
			style = critStyle
		}
		parts = append(parts, fmt.Sprintf("failures %s %d/%d  cycles %d  success %d  timeout %d  unexpected %d  connection_error %d",
			style.Render(failureGauge(m.last.ConsecutiveFailures, m.last.MaxFailures)),
			m.last.ConsecutiveFailures, m.last.MaxFailures, m.cycles,
			m.outcomes[heartbeat.OutcomeSuccess], m.outcomes[heartbeat.OutcomeTimeout],
			m.outcomes[heartbeat.OutcomeUnexpected], m.outcomes[heartbeat.OutcomeConnectionError]))
	}
	if m.haveTarget {
		chaos := okStyle.Render("off")
		if m.chaos {
			chaos = critStyle.Render("on")
		}
		parts = append(parts, fmt.Sprintf("connections %d  reply %d  stall %d  trickle %d  silent %d  failure chance %.2f  chaos %s",
			m.connections, m.actions["reply"], m.actions["stall"], m.actions["trickle"], m.actions["silent"], m.chance, chaos))
	}
	if m.escalation != nil {
		parts = append(parts, bannerStyle.Render(fmt.Sprintf("%s (cycle %d, last %s)", CriticalLine, m.escalation.Cycle, m.escalation.LastOutcome)))
	}
	header := lipgloss.JoinVertical(lipgloss.Left, parts...)
	if m.wrap && m.vp.Width > 0 {
		header = wordwrap.String(header, m.vp.Width)
	}
	return header
}

func (m tuiModel) footer() string {
	if m.inputOpen {
		line := "failure chance: " + m.input.View()
		if m.inputErr != "" {
			line += " " + critStyle.Render(m.inputErr)
		}
		return line
	}
	if m.help {
		return helpStyle.Render("q quit  w wrap  s autoscroll  c chaos  f failure chance  ↑/↓ scroll  ? help")
	}
	return helpStyle.Render("? help")
}

func (m *tuiModel) updateViewportHeight() {
	if m.height == 0 {
		return
	}
	h := m.height - m.headerHeight - lipgloss.Height(m.footer())
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.header, m.vp.View(), m.footer())
}
