// Package statusd serves live migration state over HTTP while a run is in
// flight: a WebSocket event stream at /ws, a progress snapshot at
// /progress, and a liveness probe at /healthz. The listener is meant to
// stay on loopback; progress data carries account handles.
package statusd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// readLimit bounds inbound frames; clients only listen.
	readLimit = 512
	// sendBuffer is each client's event backlog before it is dropped.
	sendBuffer = 64
)

// Server is the status endpoint for one migration process.
type Server struct {
	addr    string
	store   *progress.Store
	limiter *ratelimit.Controller

	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[string]*client

	httpServer *http.Server
	mux        *http.ServeMux
}

// New creates a status server bound to addr. limiter may be nil.
func New(addr string, store *progress.Store, limiter *ratelimit.Controller) *Server {
	s := &Server{
		addr:    addr,
		store:   store,
		limiter: limiter,
		clients: make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return s
}

// checkOrigin admits non-browser clients (no Origin header) and local
// pages. The listener sits on loopback; this only keeps arbitrary web
// pages from reading the stream through the operator's browser.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	slog.Warn("statusd.origin_rejected", "origin", origin)
	return false
}

// Sink returns an event sink that fans each event out to every connected
// WebSocket client. It never blocks: a client that cannot keep up is
// dropped.
func (s *Server) Sink() events.Sink {
	return s.broadcast
}

func (s *Server) broadcast(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("statusd.marshal_event", "type", e.Type, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		select {
		case c.send <- data:
		default:
			delete(s.clients, id)
			close(c.send)
			slog.Warn("statusd.client_dropped", "id", id, "reason", "send buffer full")
		}
	}
}

// ClientCount reports connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/progress", s.handleProgress)
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled, then shuts down with a grace
// period.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	slog.Info("statusd starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("statusd.upgrade_failed", "error", err)
		return
	}
	c := &client{
		id:   uuid.Must(uuid.NewV7()).String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	s.register(c)
	go c.writePump()
	c.readPump(s)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Progress *progress.Global   `json:"progress"`
		Rate     ratelimit.Snapshot `json:"rate"`
		Clients  int                `json:"clients"`
	}{
		Progress: s.store.Snapshot(),
		Clients:  s.ClientCount(),
	}
	if s.limiter != nil {
		resp.Rate = s.limiter.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("statusd.encode_progress", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","phase":%q}`, s.store.Snapshot().Phase)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
	slog.Info("statusd.client_connected", "id", c.id)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
		slog.Info("statusd.client_disconnected", "id", c.id)
	}
}

// client is one WebSocket consumer. Events flow through send; the read
// side only watches for close and pong frames.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(s *Server) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// StartTestServer listens on a random loopback port and returns the actual
// address and a blocking start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}

	return addr, start
}
