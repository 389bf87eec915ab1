// Package target implements the probe target: an accept loop that answers
// heartbeats and injects faults on purpose.
package target

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"heartbeat-sim/internal/heartbeat"
	"heartbeat-sim/internal/logging"
	"heartbeat-sim/internal/sink"
)

// Default settings used when a Config field is left at zero.
const (
	DefaultListenAddress = ":9999"
	DefaultStallDuration = 10 * time.Second
	DefaultReadTimeout   = 5 * time.Second
	DefaultStatus        = "OK"
)

// Config is immutable once the server starts.
type Config struct {
	ListenAddress string
	FailureChance float64
	CrashRatio    float64
	StallDuration time.Duration
	ReadTimeout   time.Duration
	Status        string
	Seed          int64
}

// WithDefaults fills zero durations, the address and the status. FailureChance and
// CrashRatio are kept as given since zero is a meaningful value.
func (c Config) WithDefaults() Config {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.Status == "" {
		c.Status = DefaultStatus
	}
	if c.StallDuration <= 0 {
		c.StallDuration = DefaultStallDuration
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// Server accepts probe connections and serves each in its own goroutine.
type Server struct {
	cfg    Config
	policy Policy
	writer sink.ConnectionWriter
	logger *slog.Logger

	wg      sync.WaitGroup
	writeMu sync.Mutex
	mu      sync.Mutex
	addr    net.Addr
	ready   chan struct{}
}

// NewServer creates a server answering with policy. A nil policy becomes a
// RandomPolicy built from cfg's FailureChance, CrashRatio, Status and Seed.
// writer may be nil.
func NewServer(cfg Config, policy Policy, writer sink.ConnectionWriter) (*Server, error) {
	cfg = cfg.WithDefaults()
	if policy == nil {
		rp, err := NewRandomPolicy(cfg.FailureChance, cfg.Status, cfg.Seed)
		if err != nil {
			return nil, err
		}
		if err := rp.SetCrashRatio(cfg.CrashRatio); err != nil {
			return nil, err
		}
		policy = rp
	}
	return &Server{
		cfg:    cfg,
		policy: policy,
		writer: writer,
		ready:  make(chan struct{}),
	}, nil
}

// SetLogger overrides the logger taken from the serve context.
func (s *Server) SetLogger(l *slog.Logger) { s.logger = l }

// Policy returns the answering policy.
func (s *Server) Policy() Policy { return s.policy }

// Addr blocks until the server is listening and returns its address.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln until ctx is done. A stalled connection never
// blocks accepting the next one. In-flight connections are released on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	log := s.log(ctx)
	log.Info("probe target listening", "addr", ln.Addr().String(), "stall", s.cfg.StallDuration)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				log.Info("probe target stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			// Transient failures such as EMFILE: back off and retry while ctx is alive.
			backoff = nextBackoff(backoff)
			log.Warn("accept failed, retrying", "err", err, "backoff", backoff)
			sleepCtx(ctx, backoff)
			continue
		}
		backoff = 0
		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// handle serves one connection: bounded read, decision, answer, close.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	buf := make([]byte, heartbeat.MaxMessageSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		s.log(ctx).Debug("probe read failed", "remote", conn.RemoteAddr().String(), "err", err)
	}
	msg := buf[:n]

	act := s.policy.Decide(msg)
	s.record(ctx, conn, msg, act)

	switch act.Kind {
	case ActionReply:
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
		if _, err := io.WriteString(conn, act.Payload); err != nil {
			s.log(ctx).Debug("reply write failed", "remote", conn.RemoteAddr().String(), "err", err)
		}
	case ActionTrickle:
		if act.Payload != "" {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
			_, _ = io.WriteString(conn, act.Payload[:1])
		}
		s.stall(ctx)
	case ActionStall:
		s.stall(ctx)
	case ActionSilent:
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// stall keeps the connection open and unresponsive, like a hung service.
func (s *Server) stall(ctx context.Context) {
	sleepCtx(ctx, s.cfg.StallDuration)
}

func (s *Server) record(ctx context.Context, conn net.Conn, msg []byte, act Action) {
	row := heartbeat.ConnectionRow{
		ConnectionID: uuid.New().String(),
		Remote:       conn.RemoteAddr().String(),
		Probe:        strings.TrimSpace(string(msg)),
		Action:       string(act.Kind),
		Payload:      act.Payload,
		Timestamp:    time.Now().UTC(),
	}
	if fc, ok := s.policy.(FaultControl); ok {
		row.FailureChance = fc.FailureChance()
		row.Chaos = fc.Chaos()
	}

	log := s.log(ctx)
	if act.Kind == ActionStall || act.Kind == ActionTrickle {
		log.Warn("probe target unresponsive (simulated)", "connection", row.ConnectionID, "action", row.Action, "stall", s.cfg.StallDuration)
	} else {
		log.Debug("probe handled", "connection", row.ConnectionID, "action", row.Action, "probe", row.Probe)
	}

	if s.writer == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writer.WriteConnection(row); err != nil {
		log.Error("connection write failed", "err", err)
	}
}

func (s *Server) log(ctx context.Context) *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.FromContext(ctx)
}
