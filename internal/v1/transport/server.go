// Package transport owns the TCP listener: one reader goroutine per
// connection feeding lines to the session dispatcher.
package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/ratelimit"
	"github.com/parlorchat/parlor/internal/v1/session"
)

// maxLineBytes bounds a single inbound line; encrypted payloads are the
// largest legitimate frames.
const maxLineBytes = 64 * 1024

// Server accepts chat connections and pumps each one through the hub.
type Server struct {
	addr string
	hub  *session.Hub
	gate *ratelimit.ConnGate

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

func New(addr string, hub *session.Hub, gate *ratelimit.ConnGate) *Server {
	return &Server{addr: addr, hub: hub, gate: gate}
}

// Start binds the listener and launches the accept loop.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	logging.Info(ctx, "chat listener started", zap.String("addr", ln.Addr().String()))
	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound listen address; useful with ":0".
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn(ctx, "accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		ip := remoteIP(conn)
		if !s.gate.Allow(ctx, ip) {
			_, _ = conn.Write([]byte(protocol.Red("Too many connections, try again later") + "\n"))
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.serve(ctx, conn)
	}
}

// serve reads newline-delimited commands until the peer disconnects or a
// handler asks to stop.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	metrics.IncConnection()
	defer metrics.DecConnection()

	c := s.hub.Register(conn)
	defer s.hub.Disconnect(ctx, c)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)
	for scanner.Scan() {
		if s.hub.HandleLine(ctx, c, scanner.Text()) == session.Stop {
			return
		}
	}
	if err := scanner.Err(); err != nil && !s.isClosed() && !errors.Is(err, net.ErrClosed) {
		logging.Warn(ctx, "connection read failed",
			zap.String("addr", logging.RedactAddr(c.Addr())),
			zap.Error(err))
	}
}

// Shutdown stops accepting, closes every session, and waits for the reader
// goroutines up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	s.hub.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
