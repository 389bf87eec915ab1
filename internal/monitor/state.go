package monitor

import (
	"fmt"

	"heartbeat-sim/internal/probe"
)

// Phase is a state of the monitor's state machine.
type Phase int

const (
	Probing Phase = iota
	Evaluating
	Escalated
)

func (p Phase) String() string {
	switch p {
	case Probing:
		return "probing"
	case Evaluating:
		return "evaluating"
	case Escalated:
		return "escalated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase name in JSON output.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// State is the only data carried from one cycle to the next.
type State struct {
	ConsecutiveFailures int
	Phase               Phase
}

// Evaluate moves a probing state into evaluation once a reply or timeout is in.
// It returns false when the state is terminal.
func (s *State) Evaluate() bool {
	if s.Phase == Escalated {
		return false
	}
	s.Phase = Evaluating
	return true
}

// Observe applies one outcome. Success resets the count, anything else adds one.
// It returns true exactly once: on the observation that first brings the count
// to maxFailures. Escalated is terminal and later observations are ignored.
func (s *State) Observe(out probe.Outcome, maxFailures int) bool {
	if !s.Evaluate() {
		return false
	}
	if maxFailures < 1 {
		maxFailures = 1
	}
	if out.OK() {
		s.ConsecutiveFailures = 0
	} else {
		s.ConsecutiveFailures++
	}
	if s.ConsecutiveFailures >= maxFailures {
		s.Phase = Escalated
		return true
	}
	s.Phase = Probing
	return false
}
