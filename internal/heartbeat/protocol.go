// Wire constants shared by the monitor and the probe target
package heartbeat

import "strings"

const (
	// ProbeToken is sent once per connection by the monitor.
	ProbeToken = "HEARTBEAT"
	// AliveMarker prefixes every healthy reply.
	AliveMarker = "ALIVE"
	// MaxMessageSize bounds both the probe read and the reply read.
	MaxMessageSize = 1024
)

// AliveReply builds the liveness reply, optionally carrying a diagnostic status.
func AliveReply(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return AliveMarker
	}
	return AliveMarker + " | Status: " + status
}

// IsAlive reports whether a reply carries the liveness marker.
func IsAlive(reply string) bool {
	return strings.HasPrefix(reply, AliveMarker)
}

// IsProbe reports whether a received message is the probe token.
// Surrounding whitespace is ignored so line-oriented clients are accepted too.
func IsProbe(msg []byte) bool {
	return strings.TrimSpace(string(msg)) == ProbeToken
}
