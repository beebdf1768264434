// Package server exposes the chat engine over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/roomcast/roomcast/internal/engine"
)

// Server accepts WebSocket connections, runs the token handshake, and pumps
// frames between sockets and the engine.
type Server struct {
	address  string
	log      *slog.Logger
	engine   *engine.Engine
	listener net.Listener
	server   *http.Server

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Server fronting the given engine.
func New(address string, eng *engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		address: address,
		log:     log,
		engine:  eng,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.server = &http.Server{Handler: mux}

	s.log.Info("server started", "addr", listener.Addr().String())

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Stop shuts the server down and waits for connection handlers to finish.
// Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			_ = s.server.Shutdown(context.Background())
		}
		// Shutdown ignores hijacked sockets; close them so every read
		// loop unwinds and tears its connection down.
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleWebSocket upgrades the socket and authenticates before any frame is
// read. The opaque token rides the upgrade request as a query parameter; a
// failed resolution closes the socket with a policy-violation code and no
// engine state is created.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c, err := s.engine.Connect(r.Context(), token)
	if err != nil {
		s.log.Warn("authentication failed", "remote", r.RemoteAddr, "error", err)
		body := ws.NewCloseFrameBody(ws.StatusPolicyViolation, "authentication failed")
		_ = ws.WriteFrame(conn, ws.NewCloseFrame(body))
		_ = conn.Close()
		return
	}

	s.trackConn(conn)
	s.wg.Add(2)
	go s.readLoop(conn, c)
	go s.writePump(conn, c)
}

// readLoop feeds inbound frames to the engine until the socket dies, then
// tears the connection down.
func (s *Server) readLoop(conn net.Conn, c *engine.Connection) {
	defer s.wg.Done()
	defer s.engine.Disconnect(c)

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("read failed", "conn", c.ID(), "error", err)
			}
			return
		}
		s.engine.HandleFrame(context.Background(), c, data)
	}
}

// writePump drains the connection's outgoing queue into the socket. The
// engine closes the queue during teardown; the pump then closes the socket,
// which also unblocks the read loop.
func (s *Server) writePump(conn net.Conn, c *engine.Connection) {
	defer s.wg.Done()
	defer s.untrackConn(conn)
	defer conn.Close()

	for data := range c.Outgoing() {
		if err := wsutil.WriteServerText(conn, data); err != nil {
			s.log.Debug("write failed", "conn", c.ID(), "error", err)
			s.engine.Disconnect(c)
			// Drain so teardown never blocks on a closed socket.
			for range c.Outgoing() {
			}
			return
		}
	}
}
