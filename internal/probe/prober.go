package probe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"heartbeat-sim/internal/heartbeat"
)

// Prober performs one heartbeat exchange per call against a fixed address.
type Prober struct {
	Address string
	Timeout time.Duration
	Dialer  *net.Dialer
}

// NewProber returns a Prober for address with the given exchange timeout.
func NewProber(address string, timeout time.Duration) *Prober {
	return &Prober{Address: address, Timeout: timeout, Dialer: &net.Dialer{}}
}

// Probe connects, sends the probe token and waits for the reply. The timeout is a
// hard deadline over connect, send and receive together. The connection is closed
// on every path.
func (p *Prober) Probe(ctx context.Context) Outcome {
	start := time.Now()
	out := p.exchange(ctx)
	out.Latency = time.Since(start)
	if te, ok := out.Err.(*TimeoutError); ok && te.After == 0 {
		te.After = p.Timeout
	}
	return out
}

func (p *Prober) exchange(ctx context.Context) Outcome {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return classifyErr("connect", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return ConnectionError("set deadline", err)
		}
	}
	// Unblock reads if the caller cancels before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := io.WriteString(conn, heartbeat.ProbeToken); err != nil {
		return classifyErr("send", err)
	}
	reply, err := readReply(conn)
	if err != nil {
		return classifyErr("receive", err)
	}
	return Classify(reply, nil)
}

// readReply reads until EOF, a newline or MaxMessageSize bytes. A peer that sends
// a partial reply and then hangs surfaces as the deadline error.
func readReply(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, 64)
	chunk := make([]byte, 256)
	for len(buf) < heartbeat.MaxMessageSize {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return buf[:i], nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			return buf, err
		}
	}
	return buf[:heartbeat.MaxMessageSize], nil
}
