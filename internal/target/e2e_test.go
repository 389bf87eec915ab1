package target_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"heartbeat-sim/internal/heartbeat"
	"heartbeat-sim/internal/monitor"
	"heartbeat-sim/internal/target"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type rows struct {
	mu          sync.Mutex
	probes      []heartbeat.ProbeRow
	escalations []heartbeat.EscalationRow
}

func (r *rows) WriteProbe(p heartbeat.ProbeRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, p)
	return nil
}

func (r *rows) WriteEscalation(e heartbeat.EscalationRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalations = append(r.escalations, e)
	return nil
}

// sequence answers connection n with actions[n], repeating the last action.
func sequence(actions ...target.Action) target.Policy {
	var mu sync.Mutex
	n := 0
	return target.PolicyFunc(func(msg []byte) target.Action {
		mu.Lock()
		defer mu.Unlock()
		a := actions[min(n, len(actions)-1)]
		n++
		return a
	})
}

func runPair(t *testing.T, policy target.Policy, maxFailures int, budget time.Duration) (heartbeat.EscalationRow, *rows, error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, err := target.NewServer(target.Config{StallDuration: time.Second}, policy, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.SetLogger(quiet)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	w := &rows{}
	m := monitor.New(monitor.Config{
		Address:     srv.Addr().String(),
		Interval:    10 * time.Millisecond,
		Timeout:     100 * time.Millisecond,
		MaxFailures: maxFailures,
	}, w, w)
	m.SetLogger(quiet)

	runCtx, stop := context.WithTimeout(context.Background(), budget)
	defer stop()
	esc, err := m.Run(runCtx)
	return esc, w, err
}

var (
	aliveAct = target.Action{Kind: target.ActionReply, Payload: "ALIVE"}
	stallAct = target.Action{Kind: target.ActionStall}
)

func TestHealthyTargetNeverEscalates(t *testing.T) {
	p, _ := target.NewRandomPolicy(0, "", 1)
	_, w, err := runPair(t, p, 3, 500*time.Millisecond)
	if err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v, want deadline", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.escalations) != 0 {
		t.Fatalf("healthy target escalated: %+v", w.escalations)
	}
	if len(w.probes) < 5 {
		t.Fatalf("only %d cycles ran", len(w.probes))
	}
	for _, r := range w.probes {
		if r.Outcome != heartbeat.OutcomeSuccess || r.ConsecutiveFailures != 0 {
			t.Fatalf("unexpected row %+v", r)
		}
	}
}

func TestStallingTargetEscalatesOnThirdCycle(t *testing.T) {
	p, _ := target.NewRandomPolicy(1, "", 1)
	esc, w, err := runPair(t, p, 3, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if esc.Cycle != 3 || esc.LastOutcome != heartbeat.OutcomeTimeout {
		t.Fatalf("unexpected escalation %+v", esc)
	}
	if len(w.probes) != 3 || len(w.escalations) != 1 {
		t.Fatalf("got %d probes and %d escalations", len(w.probes), len(w.escalations))
	}
}

func TestAlternatingTargetNeverEscalates(t *testing.T) {
	var mu sync.Mutex
	n := 0
	p := target.PolicyFunc(func([]byte) target.Action {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n%2 == 1 {
			return stallAct
		}
		return aliveAct
	})
	_, w, err := runPair(t, p, 2, 800*time.Millisecond)
	if err != context.DeadlineExceeded {
		t.Fatalf("Run returned %v, want deadline", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.probes {
		if r.ConsecutiveFailures > 1 {
			t.Fatalf("count reached %d on cycle %d", r.ConsecutiveFailures, r.Cycle)
		}
	}
}

func TestUnexpectedReplyEscalates(t *testing.T) {
	p := sequence(target.Action{Kind: target.ActionReply, Payload: "DEAD-SOMETHING"})
	esc, _, err := runPair(t, p, 3, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if esc.Cycle != 3 || esc.LastOutcome != heartbeat.OutcomeUnexpected {
		t.Fatalf("unexpected escalation %+v", esc)
	}
}

func TestRecoveryResetsCount(t *testing.T) {
	p := sequence(stallAct, stallAct, aliveAct, stallAct, stallAct, stallAct)
	esc, w, err := runPair(t, p, 3, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if esc.Cycle != 6 {
		t.Fatalf("escalated on cycle %d, want 6", esc.Cycle)
	}
	if w.probes[2].ConsecutiveFailures != 0 {
		t.Fatalf("success did not reset the count: %+v", w.probes[2])
	}
}

func TestTrickleTimesOut(t *testing.T) {
	p := sequence(target.Action{Kind: target.ActionTrickle, Payload: "ALIVE"})
	esc, _, err := runPair(t, p, 1, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if esc.LastOutcome != heartbeat.OutcomeTimeout {
		t.Fatalf("trickle classified as %s", esc.LastOutcome)
	}
}

func TestMissingTargetEscalatesAsConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := monitor.New(monitor.Config{Address: addr, Interval: time.Millisecond, Timeout: 100 * time.Millisecond}, nil, nil)
	m.SetLogger(quiet)
	esc, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if esc.LastOutcome != heartbeat.OutcomeConnectionError || esc.Cycle != 3 {
		t.Fatalf("unexpected escalation %+v", esc)
	}
}

func TestCrashingTargetEscalatesAsUnexpected(t *testing.T) {
	p, _ := target.NewRandomPolicy(1, "", 1)
	if err := p.SetCrashRatio(1); err != nil {
		t.Fatalf("SetCrashRatio: %v", err)
	}
	esc, w, err := runPair(t, p, 3, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if esc.Cycle != 3 || esc.LastOutcome != heartbeat.OutcomeUnexpected {
		t.Fatalf("unexpected escalation %+v", esc)
	}
	for _, r := range w.probes {
		if r.Payload != "" {
			t.Fatalf("crashed target produced payload %q", r.Payload)
		}
	}
}
