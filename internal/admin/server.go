// Package admin serves the runtime control and inspection API.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"heartbeat-sim/internal/metrics"
	"heartbeat-sim/internal/monitor"
	"heartbeat-sim/internal/target"
)

// DefaultListenAddress is used when no address is configured.
const DefaultListenAddress = ":8080"

const shutdownTimeout = 5 * time.Second

//go:embed templates/index.html
var content embed.FS

// StatusSource reports the monitor state.
type StatusSource interface {
	Status() monitor.Status
}

// Server exposes status, fault controls, metrics and the event stream.
type Server struct {
	monitor StatusSource
	faults  target.FaultControl
	metrics *metrics.Metrics
	hub     *Hub
	tpl     *template.Template
	mux     *http.ServeMux
	logger  *slog.Logger

	closeOnce sync.Once
	closing   chan struct{}
}

// NewServer wires the handlers. Any of mon, faults and m may be nil; the
// matching routes then answer 404.
func NewServer(mon StatusSource, faults target.FaultControl, m *metrics.Metrics) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s := &Server{
		monitor: mon,
		faults:  faults,
		metrics: m,
		hub:     NewHub(),
		tpl:     tpl,
		mux:     http.NewServeMux(),
		logger:  slog.Default(),
		closing: make(chan struct{}),
	}
	s.routes()
	return s
}

// SetLogger overrides the default logger.
func (s *Server) SetLogger(l *slog.Logger) { s.logger = l }

// Hub returns the event hub; add it to the sink fan-out to feed /events.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handle(pattern, op string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.Instrument(op, handler)
	}
	s.mux.Handle(pattern, handler)
}

func (s *Server) routes() {
	s.handle("/", "index", s.handleIndex)
	s.handle("/status", "status", s.handleStatus)
	s.handle("/healthz", "healthz", s.handleHealthz)
	s.handle("/toggle-chaos", "toggle_chaos", s.handleToggleChaos)
	s.handle("/failure-chance", "failure_chance", s.handleFailureChance)
	s.mux.HandleFunc("/events", s.handleEvents)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

// Start listens on addr and serves until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultListenAddress
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		s.closeOnce.Do(func() { close(s.closing) })
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("admin shutdown", "err", err)
		}
	})
	defer stop()

	s.logger.Info("admin server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type targetStatus struct {
	Chaos         bool    `json:"chaos"`
	FailureChance float64 `json:"failure_chance"`
	CrashRatio    float64 `json:"crash_ratio"`
}

type statusResponse struct {
	Monitor *monitor.Status `json:"monitor,omitempty"`
	Target  *targetStatus   `json:"target,omitempty"`
}

func (s *Server) status() statusResponse {
	var resp statusResponse
	if s.monitor != nil {
		st := s.monitor.Status()
		resp.Monitor = &st
	}
	if s.faults != nil {
		resp.Target = &targetStatus{
			Chaos:         s.faults.Chaos(),
			FailureChance: s.faults.FailureChance(),
			CrashRatio:    s.faults.CrashRatio(),
		}
	}
	return resp
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, s.status()); err != nil {
		s.logger.Error("render index", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// handleHealthz answers 503 once the monitor has escalated.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.monitor != nil {
		if st := s.monitor.Status(); st.Phase == monitor.Escalated {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "escalated", "consecutive_failures": st.ConsecutiveFailures})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleToggleChaos(w http.ResponseWriter, r *http.Request) {
	if s.faults == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state := s.faults.ToggleChaos()
	s.logger.Info("chaos mode toggled", "chaos", state)
	writeJSON(w, http.StatusOK, map[string]any{"chaos": state})
}

func (s *Server) handleFailureChance(w http.ResponseWriter, r *http.Request) {
	if s.faults == nil {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost, http.MethodPut:
		v, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "value must be a number in [0,1]"})
			return
		}
		if err := s.faults.SetFailureChance(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		s.logger.Info("failure chance changed", "failure_chance", v)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failure_chance": s.faults.FailureChance()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
