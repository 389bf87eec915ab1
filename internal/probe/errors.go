package probe

import (
	"fmt"
	"time"
)

// TransportError reports a connection-level failure: refused, reset, DNS.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that the exchange deadline expired.
type TimeoutError struct {
	Op    string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("timeout during %s after %s", e.Op, e.After)
	}
	return fmt.Sprintf("timeout during %s", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that arrived but lacks the liveness marker.
type ProtocolError struct {
	Payload string
}

func (e *ProtocolError) Error() string {
	if e.Payload == "" {
		return "empty reply"
	}
	return fmt.Sprintf("unexpected reply %q", e.Payload)
}
