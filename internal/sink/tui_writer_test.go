package sink

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"heartbeat-sim/internal/heartbeat"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func TestTUIWriterMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &TUIWriter{program: p}
	if err := w.WriteProbe(heartbeat.ProbeRow{Cycle: 1, Timestamp: time.Unix(0, 0).UTC()}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := p.msgs[0].(logMsg); !ok {
		t.Fatalf("expected logMsg, got %T", p.msgs[0])
	}
	if _, ok := p.msgs[1].(probeMsg); !ok {
		t.Fatalf("expected probeMsg, got %T", p.msgs[1])
	}
	if err := w.WriteEscalation(heartbeat.EscalationRow{Cycle: 3}); err != nil {
		t.Fatalf("escalation: %v", err)
	}
	if _, ok := p.msgs[3].(escalationMsg); !ok {
		t.Fatalf("expected escalationMsg, got %T", p.msgs[3])
	}
	if err := w.WriteConnection(heartbeat.ConnectionRow{Action: "stall"}); err != nil {
		t.Fatalf("connection: %v", err)
	}
	if _, ok := p.msgs[5].(connectionMsg); !ok {
		t.Fatalf("expected connectionMsg, got %T", p.msgs[5])
	}
	w.SetAdminStatus(true)
	if _, ok := p.msgs[6].(adminMsg); !ok {
		t.Fatalf("expected adminMsg, got %T", p.msgs[6])
	}
}

func update(t *testing.T, m tuiModel, msg tea.Msg) tuiModel {
	t.Helper()
	mi, _ := m.Update(msg)
	return mi.(tuiModel)
}

func TestTUIEscalationBanner(t *testing.T) {
	m := newTUIModel(&Overview{Role: "monitor", Items: [][2]string{{"Target", "localhost:9999"}}})
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	m = update(t, m, probeMsg{heartbeat.ProbeRow{Outcome: heartbeat.OutcomeTimeout, ConsecutiveFailures: 2, MaxFailures: 3}})
	if !strings.Contains(m.header, "[##-]") {
		t.Fatalf("failure gauge missing from header: %q", m.header)
	}
	if strings.Contains(m.header, CriticalLine) {
		t.Fatalf("banner shown before escalation")
	}
	m = update(t, m, escalationMsg{heartbeat.EscalationRow{Cycle: 3, LastOutcome: heartbeat.OutcomeTimeout}})
	if !strings.Contains(m.View(), CriticalLine) {
		t.Fatalf("banner missing after escalation")
	}
}

func TestTUIWrapToggle(t *testing.T) {
	m := newTUIModel(nil)
	m = update(t, m, tea.WindowSizeMsg{Width: 20, Height: 20})
	m = update(t, m, logMsg{line: "one two three four five six"})
	lines := strings.Split(m.vp.View(), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[1]) != "" {
		t.Fatalf("expected single line before wrap")
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	if !m.wrap {
		t.Fatalf("wrap not toggled")
	}
	lines = strings.Split(m.vp.View(), "\n")
	if strings.TrimSpace(lines[1]) == "" {
		t.Fatalf("expected wrapped content on second line")
	}
}

func TestTUIScrollToggle(t *testing.T) {
	m := newTUIModel(nil)
	m.vp.Height = 1
	m.vp.Width = 20
	m = update(t, m, logMsg{line: "l1"})
	m = update(t, m, logMsg{line: "l2"})
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset 1, got %d", m.vp.YOffset)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if m.autoscroll {
		t.Fatalf("autoscroll should be off")
	}
	m = update(t, m, logMsg{line: "l3"})
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset unchanged, got %d", m.vp.YOffset)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.vp.YOffset != 0 {
		t.Fatalf("expected YOffset 0 after scrolling up, got %d", m.vp.YOffset)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if !m.autoscroll || m.vp.YOffset != len(m.logs)-m.vp.Height {
		t.Fatalf("autoscroll on: YOffset %d", m.vp.YOffset)
	}
}

func TestTUIControls(t *testing.T) {
	chaos := false
	var chance float64
	m := newTUIModel(nil)
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	m = update(t, m, setControlsMsg{c: Controls{
		ToggleChaos: func() bool { chaos = !chaos; return chaos },
		SetFailureChance: func(v float64) error {
			if v > 1 {
				return errors.New("out of range")
			}
			chance = v
			return nil
		},
	}})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if !chaos || !m.chaos {
		t.Fatalf("chaos key not wired")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	if !m.inputOpen {
		t.Fatalf("failure chance input not opened")
	}
	m.input.SetValue("2")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.inputOpen || m.inputErr == "" {
		t.Fatalf("invalid value accepted")
	}
	m.input.SetValue("0.5")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.inputOpen || chance != 0.5 || m.chance != 0.5 {
		t.Fatalf("failure chance not applied: open=%v chance=%v", m.inputOpen, chance)
	}
}

func TestTUIWriterAsLogOutput(t *testing.T) {
	p := &fakeProgram{}
	w := &TUIWriter{program: p}
	n, err := w.Write([]byte("level=INFO msg=one\nlevel=WARN msg=two\n"))
	if err != nil || n == 0 {
		t.Fatalf("write = %d, %v", n, err)
	}
	if len(p.msgs) != 2 {
		t.Fatalf("expected one message per line, got %d", len(p.msgs))
	}
	if m, ok := p.msgs[1].(logMsg); !ok || !strings.Contains(m.line, "msg=two") {
		t.Fatalf("unexpected message %#v", p.msgs[1])
	}
}
