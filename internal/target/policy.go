package target

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"heartbeat-sim/internal/heartbeat"
)

// ActionKind tells the connection handler how to answer.
type ActionKind string

const (
	// ActionReply sends Payload and closes.
	ActionReply ActionKind = "reply"
	// ActionStall holds the connection open without answering.
	ActionStall ActionKind = "stall"
	// ActionSilent closes without answering.
	ActionSilent ActionKind = "silent"
	// ActionTrickle sends the first byte of Payload, then stalls.
	ActionTrickle ActionKind = "trickle"
)

// Action is the per-connection decision.
type Action struct {
	Kind    ActionKind
	Payload string
}

// Policy decides how to answer one received probe message.
type Policy interface {
	Decide(msg []byte) Action
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(msg []byte) Action

// Decide calls f.
func (f PolicyFunc) Decide(msg []byte) Action { return f(msg) }

// FaultControl exposes runtime fault-injection knobs to the admin API.
type FaultControl interface {
	Chaos() bool
	ToggleChaos() bool
	FailureChance() float64
	SetFailureChance(float64) error
	CrashRatio() float64
}

// RandomPolicy faults each connection independently with probability FailureChance.
// While chaos mode is on every connection faults. A fault stalls the connection,
// except for the CrashRatio share of faults which close it at once like a
// crashed process.
type RandomPolicy struct {
	mu     sync.Mutex
	chance float64
	crash  float64
	chaos  bool
	status string
	rand   func() float64
}

// NewRandomPolicy builds a policy drawing from a source seeded with seed.
// A zero seed uses the current time.
func NewRandomPolicy(chance float64, status string, seed int64) (*RandomPolicy, error) {
	if err := validChance(chance); err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return &RandomPolicy{chance: chance, status: status, rand: rng.Float64}, nil
}

// Decide draws the fault decision, then answers the probe token with the liveness
// reply and anything else with silence.
func (p *RandomPolicy) Decide(msg []byte) Action {
	if fault, crash := p.fault(); fault {
		if crash {
			return Action{Kind: ActionSilent}
		}
		return Action{Kind: ActionStall}
	}
	if heartbeat.IsProbe(msg) {
		return Action{Kind: ActionReply, Payload: heartbeat.AliveReply(p.status)}
	}
	return Action{Kind: ActionSilent}
}

// fault draws the fault decision and, for faults, the crash share. The second
// draw only happens when a crash ratio is set, so seeded runs without one keep
// their sequence.
func (p *RandomPolicy) fault() (fault, crash bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fault = p.rand() < p.chance || p.chaos
	if fault && p.crash > 0 {
		crash = p.rand() < p.crash
	}
	return fault, crash
}

// Chaos reports whether chaos mode is active.
func (p *RandomPolicy) Chaos() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chaos
}

// ToggleChaos flips chaos mode and returns the new state.
func (p *RandomPolicy) ToggleChaos() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chaos = !p.chaos
	return p.chaos
}

// FailureChance returns the current stall probability.
func (p *RandomPolicy) FailureChance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chance
}

// SetFailureChance updates the stall probability; it must lie in [0,1].
func (p *RandomPolicy) SetFailureChance(chance float64) error {
	if err := validChance(chance); err != nil {
		return err
	}
	p.mu.Lock()
	p.chance = chance
	p.mu.Unlock()
	return nil
}

// CrashRatio returns the share of faults answered by an immediate close.
func (p *RandomPolicy) CrashRatio() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crash
}

// SetCrashRatio updates the crash share of faults; it must lie in [0,1].
func (p *RandomPolicy) SetCrashRatio(ratio float64) error {
	if ratio < 0 || ratio > 1 || ratio != ratio {
		return fmt.Errorf("crash ratio %v outside [0,1]", ratio)
	}
	p.mu.Lock()
	p.crash = ratio
	p.mu.Unlock()
	return nil
}

func validChance(c float64) error {
	if c < 0 || c > 1 || c != c {
		return fmt.Errorf("failure chance %v outside [0,1]", c)
	}
	return nil
}
