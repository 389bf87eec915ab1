// Package scenario loads scripted probe-target behaviour from YAML.
package scenario

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"heartbeat-sim/internal/heartbeat"
	"heartbeat-sim/internal/target"
)

// Behaviors understood by a script step.
const (
	BehaviorAlive      = "alive"
	BehaviorStall      = "stall"
	BehaviorUnexpected = "unexpected"
	BehaviorSilent     = "silent"
	BehaviorTrickle    = "trickle"
)

// DefaultUnexpectedPayload is sent by unexpected steps without a payload.
const DefaultUnexpectedPayload = "DEAD"

// Script is an ordered list of target answers, one per accepted connection.
type Script struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Loop        bool   `yaml:"loop,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step answers Repeat consecutive connections with the same behaviour.
type Step struct {
	Behavior string `yaml:"behavior"`
	Payload  string `yaml:"payload,omitempty"`
	Repeat   int    `yaml:"repeat,omitempty"`
}

// Load reads a YAML script from disk.
func Load(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML script.
func Parse(b []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks behaviours and repeat counts.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q: no steps", s.Name)
	}
	for i, st := range s.Steps {
		switch st.Behavior {
		case BehaviorAlive, BehaviorStall, BehaviorUnexpected, BehaviorSilent, BehaviorTrickle:
		default:
			return fmt.Errorf("scenario %q step %d: unknown behavior %q", s.Name, i, st.Behavior)
		}
		if st.Repeat < 0 {
			return fmt.Errorf("scenario %q step %d: negative repeat", s.Name, i)
		}
		if st.Behavior == BehaviorAlive && st.Payload != "" && !heartbeat.IsAlive(st.Payload) {
			return fmt.Errorf("scenario %q step %d: alive payload %q must start with %s; use behavior %s for other replies",
				s.Name, i, st.Payload, heartbeat.AliveMarker, BehaviorUnexpected)
		}
	}
	return nil
}

// Len is the number of connections one pass of the script answers.
func (s *Script) Len() int {
	n := 0
	for _, st := range s.Steps {
		n += st.times()
	}
	return n
}

// Action returns the answer for the n-th connection (zero based) and whether the
// script covered it. Past the end a looping script wraps around; otherwise ok is false.
func (s *Script) Action(n int) (target.Action, bool) {
	total := s.Len()
	if total == 0 {
		return target.Action{}, false
	}
	if n >= total {
		if !s.Loop {
			return target.Action{}, false
		}
		n %= total
	}
	for _, st := range s.Steps {
		if n < st.times() {
			return st.action(), true
		}
		n -= st.times()
	}
	return target.Action{}, false
}

// Policy plays the script one step per connection. Probes that do not match the
// token are closed silently without consuming a step. When a non-looping script
// runs out the target answers alive with status.
func (s *Script) Policy(status string) target.Policy {
	var (
		mu sync.Mutex
		n  int
	)
	return target.PolicyFunc(func(msg []byte) target.Action {
		if !heartbeat.IsProbe(msg) {
			return target.Action{Kind: target.ActionSilent}
		}
		mu.Lock()
		act, ok := s.Action(n)
		n++
		mu.Unlock()
		if !ok {
			return target.Action{Kind: target.ActionReply, Payload: heartbeat.AliveReply(status)}
		}
		if act.Kind == target.ActionReply && act.Payload == "" {
			act.Payload = heartbeat.AliveReply(status)
		}
		return act
	})
}

func (st Step) times() int {
	if st.Repeat <= 0 {
		return 1
	}
	return st.Repeat
}

func (st Step) action() target.Action {
	switch st.Behavior {
	case BehaviorStall:
		return target.Action{Kind: target.ActionStall}
	case BehaviorSilent:
		return target.Action{Kind: target.ActionSilent}
	case BehaviorTrickle:
		p := st.Payload
		if p == "" {
			p = heartbeat.AliveMarker
		}
		return target.Action{Kind: target.ActionTrickle, Payload: p}
	case BehaviorUnexpected:
		p := st.Payload
		if p == "" {
			p = DefaultUnexpectedPayload
		}
		return target.Action{Kind: target.ActionReply, Payload: p}
	default:
		return target.Action{Kind: target.ActionReply, Payload: st.Payload}
	}
}
