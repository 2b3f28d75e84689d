// Package server accepts TCP clients and runs one line-oriented session per
// connection against a protocol.HandlerFunc.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"bank-node/internal/adapter/metrics"
	"bank-node/internal/adapter/tcp/protocol"
	"bank-node/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ShutdownDirective asks the server to stop accepting clients.
const ShutdownDirective = "shutdown-server"

// ShutdownReply answers the shutdown directive.
const ShutdownReply = "Server shutting down."

const defaultWriteTimeout = 10 * time.Second

// Config tunes sessions and the accept loop.
type Config struct {
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	MaxConnections       int64
	MaxLineBytes         int
	AllowShutdownCommand bool
}

// Server is the accept loop plus the set of live sessions.
type Server struct {
	cfg     Config
	handler protocol.HandlerFunc
	metrics ports.Metrics
	log     zerolog.Logger

	sem      *semaphore.Weighted
	shutdown atomic.Bool
	quit     chan struct{}
	quitOnce sync.Once

	wg      sync.WaitGroup
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int64
}

// New creates a Server. A nil metrics discards observations.
func New(cfg Config, handler protocol.HandlerFunc, m ports.Metrics, log zerolog.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		metrics: m,
		log:     log,
		sem:     semaphore.NewWeighted(cfg.MaxConnections),
		quit:    make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds addr and runs Serve. Bind failures are returned.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on ln until the shutdown signal is observed
// (Shutdown, the shutdown directive or ctx cancellation), then closes ln.
// It does not wait for sessions; use Wait.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	s.log.Info().Str("addr", ln.Addr().String()).Int64("max_connections", s.cfg.MaxConnections).Msg("bank node listening")

	acceptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-acceptCtx.Done():
		case <-s.quit:
		}
		cancel()
		_ = ln.Close()
	}()

	// Sessions outlive the accept loop; shutdown never cancels them.
	sessionCtx := context.WithoutCancel(ctx)

	for {
		if err := s.sem.Acquire(acceptCtx, 1); err != nil {
			return s.stopped(ctx)
		}

		conn, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)
			if s.ShuttingDown() || acceptCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return s.stopped(ctx)
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn().Err(err).Msg("accept timeout, retrying")
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if s.ShuttingDown() {
			_ = conn.Close()
			s.sem.Release(1)
			return s.stopped(ctx)
		}

		s.trackConn(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			defer s.untrackConn(conn)
			s.handleConn(sessionCtx, conn)
		}()
	}
}

func (s *Server) stopped(ctx context.Context) error {
	if ctx.Err() != nil {
		s.Shutdown()
	}
	s.log.Info().Int64("active_sessions", s.active.Load()).Msg("accept loop stopped")
	return nil
}

// Shutdown raises the shutdown signal. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdown.Store(true)
	s.quitOnce.Do(func() { close(s.quit) })
}

// ShuttingDown reports whether the shutdown signal has been raised.
func (s *Server) ShuttingDown() bool {
	return s.shutdown.Load()
}

// Done is closed once the shutdown signal is raised.
func (s *Server) Done() <-chan struct{} {
	return s.quit
}

// ActiveSessions returns the number of connected clients.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

// Wait blocks until every session has ended or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
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

// Close forcibly closes every live connection.
func (s *Server) Close() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		srv:    s,
	}
	sess.log = s.log.With().Str("session_id", sess.id).Str("remote", sess.remote).Logger()

	active := s.active.Add(1)
	s.metrics.SessionOpened()
	sess.log.Info().Int64("active_clients", active).Msg("client connected")
	defer func() {
		remaining := s.active.Add(-1)
		s.metrics.SessionClosed()
		sess.log.Info().Int64("active_clients", remaining).Msg("client disconnected")
	}()

	sess.run(ctx)
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}
