// Writer interfaces shared by every heartbeat event sink
package sink

import "heartbeat-sim/internal/heartbeat"

// ProbeWriter receives one row per completed probe cycle.
type ProbeWriter interface {
	WriteProbe(heartbeat.ProbeRow) error
}

// EscalationWriter receives the critical-failure signal.
type EscalationWriter interface {
	WriteEscalation(heartbeat.EscalationRow) error
}

// ConnectionWriter receives one row per connection handled by the target.
type ConnectionWriter interface {
	WriteConnection(heartbeat.ConnectionRow) error
}

// Optional: writers may support batch mode for probe rows.
type batchProbeWriter interface {
	WriteProbes([]heartbeat.ProbeRow) error
}

// familyFilter lets a writer that implements every row interface opt out of
// families it was not configured for. kind is KindProbe, KindEscalation or
// KindConnection.
type familyFilter interface {
	Handles(kind string) bool
}
