// Package monitor drives the heartbeat polling loop and its failure state machine.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"heartbeat-sim/internal/heartbeat"
	"heartbeat-sim/internal/logging"
	"heartbeat-sim/internal/probe"
	"heartbeat-sim/internal/sink"
)

// ErrEscalated is returned by callers that need to turn an escalation into an exit status.
var ErrEscalated = errors.New("monitor escalated: critical failure")

// Default settings used when a Config field is left at zero.
const (
	DefaultInterval    = 3 * time.Second
	DefaultTimeout     = 5 * time.Second
	DefaultMaxFailures = 3
)

// Prober runs a single exchange against the target.
type Prober interface {
	Probe(ctx context.Context) probe.Outcome
}

// Config is immutable for the lifetime of a monitoring session.
type Config struct {
	Address     string
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures int
}

// WithDefaults fills zero fields with the defaults.
func (c Config) WithDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxFailures < 1 {
		c.MaxFailures = DefaultMaxFailures
	}
	return c
}

// Status is a point-in-time view of the monitor for the admin API.
type Status struct {
	SessionID           string              `json:"session_id"`
	Target              string              `json:"target"`
	Phase               Phase               `json:"phase"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	MaxFailures         int                 `json:"max_failures"`
	Cycles              int                 `json:"cycles"`
	Interval            string              `json:"interval"`
	Timeout             string              `json:"timeout"`
	Last                *heartbeat.ProbeRow `json:"last,omitempty"`
}

// Monitor probes one target at a fixed interval until escalation or stop.
type Monitor struct {
	cfg       Config
	sessionID string
	prober    Prober
	writer    sink.ProbeWriter
	escWriter sink.EscalationWriter
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	state  State
	cycles int
	last   *heartbeat.ProbeRow
}

// New creates a monitor probing cfg.Address over TCP. Either writer may be nil.
func New(cfg Config, writer sink.ProbeWriter, escWriter sink.EscalationWriter) *Monitor {
	cfg = cfg.WithDefaults()
	return &Monitor{
		cfg:       cfg,
		sessionID: uuid.New().String(),
		prober:    probe.NewProber(cfg.Address, cfg.Timeout),
		writer:    writer,
		escWriter: escWriter,
		now:       time.Now,
	}
}

// SetProber replaces the transport, e.g. for scripted runs.
func (m *Monitor) SetProber(p Prober) { m.prober = p }

// SetLogger overrides the logger taken from the run context.
func (m *Monitor) SetLogger(l *slog.Logger) { m.logger = l }

// SessionID identifies this monitoring session in emitted rows.
func (m *Monitor) SessionID() string { return m.sessionID }

// Config returns the effective configuration.
func (m *Monitor) Config() Config { return m.cfg }

// Run loops until the failure threshold is reached or ctx is cancelled. On escalation
// it returns the escalation row and a nil error; on stop it returns ctx.Err().
// The stop signal is checked at the top of every cycle and during the sleep.
func (m *Monitor) Run(ctx context.Context) (heartbeat.EscalationRow, error) {
	log := m.log(ctx)
	log.Info("heartbeat monitor started",
		"session", m.sessionID, "target", m.cfg.Address,
		"interval", m.cfg.Interval, "timeout", m.cfg.Timeout, "max_failures", m.cfg.MaxFailures)

	for {
		if err := ctx.Err(); err != nil {
			log.Info("heartbeat monitor stopping", "session", m.sessionID, "cycles", m.Cycles())
			return heartbeat.EscalationRow{}, err
		}

		row, escalated, err := m.RunCycle(ctx)
		if err != nil {
			log.Info("heartbeat monitor stopping", "session", m.sessionID, "cycles", m.Cycles())
			return heartbeat.EscalationRow{}, err
		}
		if escalated {
			return m.escalate(ctx, row), nil
		}

		if err := sleep(ctx, m.cfg.Interval); err != nil {
			log.Info("heartbeat monitor stopping", "session", m.sessionID, "cycles", m.Cycles())
			return heartbeat.EscalationRow{}, err
		}
	}
}

// RunCycle performs one probe, applies it to the state and emits the row. It returns
// ctx.Err() without touching the state when ctx ends while the probe is in flight.
func (m *Monitor) RunCycle(ctx context.Context) (heartbeat.ProbeRow, bool, error) {
	m.mu.Lock()
	if m.state.Phase == Escalated {
		m.mu.Unlock()
		return heartbeat.ProbeRow{}, false, ErrEscalated
	}
	m.mu.Unlock()

	out := m.prober.Probe(ctx)
	if err := ctx.Err(); err != nil {
		return heartbeat.ProbeRow{}, false, err
	}

	m.mu.Lock()
	escalated := m.state.Observe(out, m.cfg.MaxFailures)
	m.cycles++
	row := heartbeat.ProbeRow{
		SessionID:           m.sessionID,
		Cycle:               m.cycles,
		Target:              m.cfg.Address,
		Outcome:             string(out.Kind),
		Payload:             out.Payload,
		ConsecutiveFailures: m.state.ConsecutiveFailures,
		MaxFailures:         m.cfg.MaxFailures,
		LatencyMS:           float64(out.Latency) / float64(time.Millisecond),
		Timestamp:           m.now().UTC(),
	}
	if out.Err != nil {
		row.Error = out.Err.Error()
	}
	last := row
	m.last = &last
	m.mu.Unlock()

	log := m.log(ctx)
	if out.OK() {
		log.Debug("probe succeeded", "cycle", row.Cycle, "payload", row.Payload, "latency_ms", row.LatencyMS)
	} else {
		log.Warn("probe failed", "cycle", row.Cycle, "outcome", row.Outcome,
			"failure", row.ConsecutiveFailures, "max_failures", row.MaxFailures, "error", row.Error)
	}
	if m.writer != nil {
		if err := m.writer.WriteProbe(row); err != nil {
			log.Error("probe write failed", "cycle", row.Cycle, "err", err)
		}
	}
	return row, escalated, nil
}

func (m *Monitor) escalate(ctx context.Context, last heartbeat.ProbeRow) heartbeat.EscalationRow {
	esc := heartbeat.EscalationRow{
		SessionID:           m.sessionID,
		Cycle:               last.Cycle,
		Target:              m.cfg.Address,
		ConsecutiveFailures: last.ConsecutiveFailures,
		MaxFailures:         m.cfg.MaxFailures,
		LastOutcome:         last.Outcome,
		Reason:              heartbeat.EscalationReason,
		Timestamp:           m.now().UTC(),
	}
	log := m.log(ctx)
	log.Error("heartbeat escalation", "session", m.sessionID, "cycle", esc.Cycle,
		"consecutive_failures", esc.ConsecutiveFailures, "last_outcome", esc.LastOutcome)
	if m.escWriter != nil {
		if err := m.escWriter.WriteEscalation(esc); err != nil {
			log.Error("escalation write failed", "err", err)
		}
	}
	return esc
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cycles returns the number of completed cycles.
func (m *Monitor) Cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

// Status returns a snapshot for the admin API.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		SessionID:           m.sessionID,
		Target:              m.cfg.Address,
		Phase:               m.state.Phase,
		ConsecutiveFailures: m.state.ConsecutiveFailures,
		MaxFailures:         m.cfg.MaxFailures,
		Cycles:              m.cycles,
		Interval:            m.cfg.Interval.String(),
		Timeout:             m.cfg.Timeout.String(),
	}
	if m.last != nil {
		last := *m.last
		st.Last = &last
	}
	return st
}

func (m *Monitor) log(ctx context.Context) *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return logging.FromContext(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
