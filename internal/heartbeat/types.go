// Row types emitted by the monitor and the target
package heartbeat

import (
	"os"
	"time"
)

// ProbeRow records one completed probe cycle.
type ProbeRow struct {
	SessionID           string    `json:"session_id"` // TAG
	Cycle               int       `json:"cycle"`
	Target              string    `json:"target"` // TAG
	Outcome             string    `json:"outcome"`
	Payload             string    `json:"payload,omitempty"`
	Error               string    `json:"error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	MaxFailures         int       `json:"max_failures"`
	LatencyMS           float64   `json:"latency_ms"`
	Timestamp           time.Time `json:"ts"` // TIME INDEX
}

// Failed reports whether the cycle counted as a failure.
func (r ProbeRow) Failed() bool {
	return r.Outcome != OutcomeSuccess
}

// EscalationRow is the critical-failure signal raised once the threshold is reached.
type EscalationRow struct {
	SessionID           string    `json:"session_id"`
	Cycle               int       `json:"cycle"`
	Target              string    `json:"target"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	MaxFailures         int       `json:"max_failures"`
	LastOutcome         string    `json:"last_outcome"`
	Reason              string    `json:"reason"`
	Timestamp           time.Time `json:"ts"`
}

// ConnectionRow records how the target handled one accepted connection.
type ConnectionRow struct {
	ConnectionID  string    `json:"connection_id"`
	Remote        string    `json:"remote"`
	Probe         string    `json:"probe"`
	Action        string    `json:"action"`
	Payload       string    `json:"payload,omitempty"`
	FailureChance float64   `json:"failure_chance"`
	Chaos         bool      `json:"chaos"`
	Timestamp     time.Time `json:"ts"`
}

// Outcome labels used in rows.
const (
	OutcomeSuccess         = "success"
	OutcomeUnexpected      = "unexpected"
	OutcomeTimeout         = "timeout"
	OutcomeConnectionError = "connection_error"
)

// EscalationReason is the operator-facing message attached to escalations.
const EscalationReason = "CRITICAL FAILURE DETECTED - triggering emergency protocol"

// Table names used when writing to GreptimeDB. They can be overridden via
// HEARTBEAT_PROBE_TABLE, HEARTBEAT_ESCALATION_TABLE and HEARTBEAT_CONNECTION_TABLE.
var (
	ProbeTableName      = envOr("HEARTBEAT_PROBE_TABLE", "heartbeat_probes")
	EscalationTableName = envOr("HEARTBEAT_ESCALATION_TABLE", "heartbeat_escalations")
	ConnectionTableName = envOr("HEARTBEAT_CONNECTION_TABLE", "heartbeat_connections")
)

func envOr(key, def string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	return def
}
