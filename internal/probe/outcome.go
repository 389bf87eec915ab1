// Package probe runs a single heartbeat exchange and classifies its result.
package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"heartbeat-sim/internal/heartbeat"
)

// Kind tags an Outcome.
type Kind string

const (
	KindSuccess         Kind = heartbeat.OutcomeSuccess
	KindUnexpected      Kind = heartbeat.OutcomeUnexpected
	KindTimeout         Kind = heartbeat.OutcomeTimeout
	KindConnectionError Kind = heartbeat.OutcomeConnectionError
)

// Outcome is the classified result of one probe cycle. It is never stored.
type Outcome struct {
	Kind    Kind
	Payload string
	Err     error
	Latency time.Duration
}

// OK reports whether the outcome resets the failure count.
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Success, Unexpected, Timeout and ConnectionError build outcomes directly.
func Success(payload string) Outcome { return Outcome{Kind: KindSuccess, Payload: payload} }

func Unexpected(payload string) Outcome {
	return Outcome{Kind: KindUnexpected, Payload: payload, Err: &ProtocolError{Payload: payload}}
}

func Timeout(op string, after time.Duration) Outcome {
	return Outcome{Kind: KindTimeout, Err: &TimeoutError{Op: op, After: after}}
}

func ConnectionError(op string, err error) Outcome {
	return Outcome{Kind: KindConnectionError, Err: &TransportError{Op: op, Err: err}}
}

// Classify maps a raw reply and the error observed while obtaining it onto an Outcome.
// A non-nil err wins over any partial reply.
func Classify(reply []byte, err error) Outcome {
	if err != nil {
		return classifyErr("exchange", err)
	}
	payload := strings.TrimRight(string(reply), "\r\n")
	if heartbeat.IsAlive(payload) {
		return Success(payload)
	}
	return Unexpected(payload)
}

func classifyErr(op string, err error) Outcome {
	var te *TimeoutError
	if errors.As(err, &te) {
		return Outcome{Kind: KindTimeout, Err: te}
	}
	var tr *TransportError
	if errors.As(err, &tr) {
		return Outcome{Kind: KindConnectionError, Err: tr}
	}
	if isTimeout(err) {
		return Outcome{Kind: KindTimeout, Err: &TimeoutError{Op: op, Err: err}}
	}
	return Outcome{Kind: KindConnectionError, Err: &TransportError{Op: op, Err: err}}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
