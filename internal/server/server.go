// Package server implements the Acceptor of spec.md §4.4: it owns the TCP
// listener, spawns a session.Session per accepted connection, and lets
// them drain on their own during graceful shutdown. The accept loop,
// readiness channel, and Shutdown/WaitGroup drain are grounded on the
// teacher's Server.Serve / acceptOnce / Shutdown; what changed is what
// happens per connection (session.Session.Run instead of a reader/writer
// pair talking to a CAN hub), the option set (raffle wiring instead of
// codec/backend wiring), and Shutdown itself, which here never closes an
// already-registered connection: spec.md requires in-flight sessions to
// keep running until their client disconnects, unlike the teacher's
// force-close.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fedepagnotta/lottery-server/internal/logging"
	"github.com/fedepagnotta/lottery-server/internal/metrics"
	"github.com/fedepagnotta/lottery-server/internal/raffle"
	"github.com/fedepagnotta/lottery-server/internal/session"
	"github.com/fedepagnotta/lottery-server/internal/sessions"
	"github.com/fedepagnotta/lottery-server/internal/storage"
	"github.com/fedepagnotta/lottery-server/internal/wire"
)

// Server owns the TCP listener and the lifecycle of every accepted
// connection.
type Server struct {
	mu          sync.RWMutex
	addr        string
	store       storage.Store
	coordinator *raffle.Coordinator
	registry    *sessions.Registry

	readDeadline time.Duration
	readyOnce    sync.Once
	readyCh      chan struct{}
	lastErrMu    sync.Mutex
	lastErr      error
	errCh        chan error
	listener     net.Listener
	wg           sync.WaitGroup
	logger       *slog.Logger
	nextConnID   uint64

	totalAccepted     atomic.Uint64
	totalConnected    atomic.Uint64
	totalDisconnected atomic.Uint64
}

const defaultReadDeadline = 0 // no per-read deadline unless configured

type ServerOption func(*Server)

// NewServer constructs an Acceptor. WithStore and WithCoordinator are
// required; if they are omitted, nothing checks for it here or in Serve,
// and the first session that uses the nil store or coordinator panics,
// matching the teacher's pattern of treating missing
// required collaborators as a caller bug rather than a runtime error.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		readDeadline: defaultReadDeadline,
		readyCh:      make(chan struct{}),
		errCh:        make(chan error, 1),
		registry:     sessions.New(),
		logger:       logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) ServerOption                 { return func(s *Server) { s.addr = a } }
func WithStore(st storage.Store) ServerOption               { return func(s *Server) { s.store = st } }
func WithCoordinator(c *raffle.Coordinator) ServerOption     { return func(s *Server) { s.coordinator = c } }
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.readDeadline = d
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) SetListenAddr(a string) { s.setAddr(a) }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }
func (s *Server) ActiveSessions() int    { return s.registry.Count() }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error { s.lastErrMu.Lock(); defer s.lastErrMu.Unlock(); return s.lastErr }

// Serve accepts connections until ctx is canceled or a fatal listener
// error occurs.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	if addr == "" {
		addr = ":0"
	}
	s.mu.Unlock()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	if s.readyCh != nil {
		s.readyOnce.Do(func() { close(s.readyCh) })
	}
	s.logger.Info("tcp_listen", "addr", s.Addr())
	s.logger.Info("ready")
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// acceptOnce accepts a single connection and spawns its Session on a
// tracked goroutine. Returns nil on success (including a benign
// accept-loop blip); a wrapped error only for a fatal listener failure.
func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if _, ok := err.(net.Error); ok {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.totalAccepted.Add(1)
	metrics.IncSessionsAccepted()
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	if s.readDeadline > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.readDeadline))
	}

	s.registry.Add(conn)
	s.totalConnected.Add(1)
	connLogger.Info("session_connected")

	sess := session.New(conn, &wire.Codec{}, s.store, s.coordinator, connLogger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.registry.Remove(conn)
		defer func() {
			s.totalDisconnected.Add(1)
			connLogger.Info("session_disconnected")
		}()
		sess.Run()
	}()
	return nil
}

// Shutdown closes the listener so no new connections are accepted, then
// waits for in-flight session goroutines to exit on their own (client
// disconnect, natural protocol completion, or ctx expiring). It does not
// touch already-registered connections: a REQUEST_WINNERS session waiting
// for the raffle holds Shutdown open until the raffle has run or its
// client disconnects, which is the documented cooperative-shutdown
// behavior, not a bug.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_summary",
			"accepted", s.totalAccepted.Load(),
			"connected", s.totalConnected.Load(),
			"disconnected", s.totalDisconnected.Load(),
		)
		return nil
	}
}
