// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Session owns one TCP connection and turns blocking socket I/O into ordered,
// strand-serialized completions with per-operation timeouts and a single-shot
// shutdown.

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/concurrency"
	"github.com/momentics/fleetlink/internal/wire"
)

const (
	DefaultTimeout    = 35 * time.Second
	DefaultBufferSize = 4096
)

// Handler receives lifecycle events. Every method runs on the session strand.
type Handler interface {
	OnStart(s *Session)
	OnStartError(s *Session, err error)
	OnTimeout(s *Session)
	OnShutdown(s *Session)
}

// Option customizes a Session.
type Option func(*Session)

// WithTimeout sets the per-operation timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithBufferSize sets the capacity of the staging buffer used by ReadExactly.
func WithBufferSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.buf = make([]byte, n)
		}
	}
}

// WithLogger sets the parent logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunner runs the session strand on r (typically the shared Executor).
func WithRunner(r concurrency.Runner) Option {
	return func(s *Session) { s.runner = r }
}

const (
	dirRead = iota
	dirWrite
)

// opToken identifies one outstanding I/O operation. Whoever flips done first,
// the completion or the timer, wins; the other becomes a no-op.
type opToken struct {
	done  atomic.Bool
	timer *time.Timer
}

func (t *opToken) stop() {
	if t != nil && t.timer != nil {
		t.timer.Stop()
	}
}

// Session is one physical connection. The zero value is not usable; see New.
type Session struct {
	id      uuid.UUID
	handler Handler
	logger  *zap.Logger
	runner  concurrency.Runner
	strand  *concurrency.Strand
	timeout time.Duration
	dialer  net.Dialer

	// buf is the staging buffer. Only the strand touches it.
	buf []byte

	state atomic.Int32

	mu   sync.Mutex // guards conn, ops and state transitions
	conn net.Conn
	ops  [2]*opToken

	stack CallbackStack
	done  chan struct{}
}

// New creates an unconnected session.
func New(h Handler, opts ...Option) *Session {
	s := &Session{
		id:      uuid.New(),
		handler: h,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
		buf:     make([]byte, DefaultBufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id.String()))
	s.strand = concurrency.NewStrand(s.runner, s.logger)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id.String() }

// Logger returns the session-scoped logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// State returns the lifecycle state.
func (s *Session) State() api.SessionState { return api.SessionState(s.state.Load()) }

// IsShutdown reports whether shutdown has begun.
func (s *Session) IsShutdown() bool { return s.State() >= api.SessionShuttingDown }

// Done is closed after the shutdown hook has run.
func (s *Session) Done() <-chan struct{} { return s.done }

// BufferSize returns the staging buffer capacity.
func (s *Session) BufferSize() int { return len(s.buf) }

// RemoteAddr returns the peer address or nil before the session is connected.
func (s *Session) RemoteAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}

// RemoteAddrPort returns the peer endpoint with IPv4-mapped addresses unmapped.
func (s *Session) RemoteAddrPort() netip.AddrPort {
	switch a := s.RemoteAddr().(type) {
	case *net.TCPAddr:
		ap := a.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	case nil:
		return netip.AddrPort{}
	default:
		ap, _ := netip.ParseAddrPort(a.String())
		return ap
	}
}

// Start adopts an established connection and runs Handler.OnStart.
func (s *Session) Start(conn net.Conn) error {
	s.mu.Lock()
	if s.State() != api.SessionUnconnected {
		s.mu.Unlock()
		_ = conn.Close()
		err := api.TransportError("session", "start", api.ErrTransportClosed)
		s.Post(func() { s.handler.OnStartError(s, err) })
		return err
	}
	s.conn = conn
	s.state.Store(int32(api.SessionConnected))
	s.mu.Unlock()

	s.Post(func() {
		if s.IsShutdown() {
			return
		}
		s.handler.OnStart(s)
	})
	return nil
}

// Connect dials address in the background. The outcome is reported through
// Handler.OnStart or Handler.OnStartError.
func (s *Session) Connect(ctx context.Context, address string) {
	go func() {
		conn, err := s.dialer.DialContext(ctx, "tcp", address)
		s.connected(conn, err)
	}()
}

// ResolveAndConnect resolves host and service, then tries every address in turn.
func (s *Session) ResolveAndConnect(ctx context.Context, host, service string) {
	go func() {
		conn, err := s.resolveAndDial(ctx, host, service)
		s.connected(conn, err)
	}()
}

func (s *Session) resolveAndDial(ctx context.Context, host, service string) (net.Conn, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	port, err := net.DefaultResolver.LookupPort(ctx, "tcp", service)
	if err != nil {
		return nil, fmt.Errorf("resolve service %s: %w", service, err)
	}
	var errs []error
	for _, addr := range addrs {
		conn, err := s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

func (s *Session) connected(conn net.Conn, err error) {
	if err != nil {
		err = api.TransportError("session", "connect", err)
		s.Post(func() { s.handler.OnStartError(s, err) })
		return
	}
	_ = s.Start(conn)
}

// Post runs task on the session strand.
func (s *Session) Post(task func()) {
	s.strand.Post(task)
}

// Push registers the continuation of a new exchange. Must run on the strand
// or before Start. After shutdown, c receives the Disconnected outcome.
func (s *Session) Push(c Continuation) {
	if !s.stack.Push(c) {
		s.strand.Post(func() { c(Disconnected()) })
	}
}

// PopAndInvoke terminates the most recent exchange with o. Must run on the strand.
func (s *Session) PopAndInvoke(o Outcome) bool {
	return s.stack.PopAndInvoke(o)
}

// Pending returns the number of unterminated exchanges.
func (s *Session) Pending() int { return s.stack.Len() }

func (s *Session) activeConn() (net.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != api.SessionConnected {
		return nil, false
	}
	return s.conn, true
}

func (s *Session) arm(dir int) *opToken {
	tok := &opToken{}
	if s.timeout > 0 {
		tok.timer = time.AfterFunc(s.timeout, func() {
			s.strand.Post(func() { s.expire(tok) })
		})
	}
	s.mu.Lock()
	s.ops[dir] = tok
	s.mu.Unlock()
	return tok
}

// complete claims tok for the I/O completion. It fails when the timer already
// won or the session is shut down.
func (s *Session) complete(tok *opToken) bool {
	if s.IsShutdown() || !tok.done.CompareAndSwap(false, true) {
		return false
	}
	tok.stop()
	return true
}

func (s *Session) expire(tok *opToken) {
	if s.IsShutdown() || !tok.done.CompareAndSwap(false, true) {
		return
	}
	s.logger.Warn("operation timed out", zap.Duration("timeout", s.timeout))
	s.handler.OnTimeout(s)
	s.Shutdown()
}

// fail reports a transport or protocol error to onErr and shuts the session down.
func (s *Session) fail(err error, onErr func(error)) {
	s.logger.Debug("session i/o failed", zap.Error(err))
	if onErr != nil {
		onErr(err)
	}
	s.Shutdown()
}

// ReadInto fills p completely, then calls onOK with p on the strand.
func (s *Session) ReadInto(p []byte, onOK func([]byte), onErr func(error)) {
	conn, ok := s.activeConn()
	if !ok {
		return
	}
	tok := s.arm(dirRead)
	go func() {
		_, err := io.ReadFull(conn, p)
		s.strand.Post(func() {
			if !s.complete(tok) {
				return
			}
			if err != nil {
				s.fail(api.TransportError("session", "read", err), onErr)
				return
			}
			onOK(p)
		})
	}()
}

// ReadExactly reads n bytes into the staging buffer. The slice passed to onOK
// is valid until the next ReadExactly.
func (s *Session) ReadExactly(n int, onOK func([]byte), onErr func(error)) {
	if n > len(s.buf) {
		err := fmt.Errorf("%w: read of %d bytes exceeds staging buffer of %d",
			api.ErrProtocolViolation, n, len(s.buf))
		s.fail(api.ProtocolError("session", "read", err), onErr)
		return
	}
	s.ReadInto(s.buf[:n], onOK, onErr)
}

// ReadMessage reads and decodes one fixed-size frame into m.
func (s *Session) ReadMessage(m wire.Message, onOK func(), onErr func(error)) {
	s.ReadExactly(m.Size(), func(p []byte) {
		if err := wire.Unmarshal(p, m); err != nil {
			s.fail(api.ProtocolError("session", "decode", err), onErr)
			return
		}
		onOK()
	}, onErr)
}

// WriteBuffers writes every buffer with one vectored write where the platform allows it.
func (s *Session) WriteBuffers(bufs net.Buffers, onOK func(), onErr func(error)) {
	conn, ok := s.activeConn()
	if !ok {
		return
	}
	tok := s.arm(dirWrite)
	go func() {
		_, err := bufs.WriteTo(conn)
		s.strand.Post(func() {
			if !s.complete(tok) {
				return
			}
			if err != nil {
				s.fail(api.TransportError("session", "write", err), onErr)
				return
			}
			onOK()
		})
	}()
}

// WriteExactly writes all of p.
func (s *Session) WriteExactly(p []byte, onOK func(), onErr func(error)) {
	s.WriteBuffers(net.Buffers{p}, onOK, onErr)
}

// WriteMessage encodes and writes m.
func (s *Session) WriteMessage(m wire.Message, onOK func(), onErr func(error)) {
	s.WriteExactly(wire.Marshal(m), onOK, onErr)
}

// Shutdown closes the session. It is idempotent and safe from any goroutine.
// The state is Closed on return; the callback stack drain and Handler.OnShutdown
// follow on the strand, after which Done is closed.
func (s *Session) Shutdown() {
	s.mu.Lock()
	switch s.State() {
	case api.SessionUnconnected:
		s.state.Store(int32(api.SessionClosed))
		s.mu.Unlock()
		s.finalize()
		return
	case api.SessionConnected:
		s.state.Store(int32(api.SessionShuttingDown))
	default:
		s.mu.Unlock()
		return
	}
	conn, ops := s.conn, s.ops
	s.ops = [2]*opToken{}
	s.mu.Unlock()

	for _, tok := range ops {
		tok.stop()
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseRead()
		_ = tc.CloseWrite()
	}
	if err := conn.Close(); err != nil {
		s.logger.Debug("close failed", zap.Error(err))
	}
	s.state.Store(int32(api.SessionClosed))
	s.finalize()
}

func (s *Session) finalize() {
	s.strand.Post(func() {
		if n := s.stack.Drain(Disconnected()); n > 0 {
			s.logger.Debug("discarded pending exchanges", zap.Int("count", n))
		}
		s.handler.OnShutdown(s)
		close(s.done)
	})
}
