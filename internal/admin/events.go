package admin

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"heartbeat-sim/internal/heartbeat"
	"heartbeat-sim/internal/sink"
)

const (
	eventsWriteTimeout = 5 * time.Second
	eventsBuffer       = 64
)

var eventsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// Hub fans heartbeat rows out to websocket subscribers. A subscriber that falls
// behind by more than its buffer is disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

// Subscribe registers a receiver. The channel is closed on Unsubscribe or when
// the subscriber is dropped for being slow.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, eventsBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends ev to every subscriber without blocking.
func (h *Hub) Broadcast(ev sink.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
			delete(h.clients, ch)
			close(ch)
		}
	}
	return nil
}

// WriteProbe implements sink.ProbeWriter.
func (h *Hub) WriteProbe(row heartbeat.ProbeRow) error {
	return h.Broadcast(sink.Event{Kind: sink.KindProbe, Row: row})
}

// WriteEscalation implements sink.EscalationWriter.
func (h *Hub) WriteEscalation(row heartbeat.EscalationRow) error {
	return h.Broadcast(sink.Event{Kind: sink.KindEscalation, Row: row})
}

// WriteConnection implements sink.ConnectionWriter.
func (h *Hub) WriteConnection(row heartbeat.ConnectionRow) error {
	return h.Broadcast(sink.Event{Kind: sink.KindConnection, Row: row})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveEvents(conn)
}

func (s *Server) serveEvents(conn *websocket.Conn) {
	defer conn.Close()
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
