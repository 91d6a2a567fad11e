// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server is the facade of the fleet coordination server: it wires the reactor
// pool, the record database and the file manager to the TCP acceptor and the
// UDP state endpoint, and tears every session down on Shutdown.

package server

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/control"
	"github.com/momentics/fleetlink/internal/auth"
	"github.com/momentics/fleetlink/internal/concurrency"
	"github.com/momentics/fleetlink/internal/files"
	"github.com/momentics/fleetlink/internal/registry"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/pool"
	"github.com/momentics/fleetlink/transport/tcp"
)

var ErrServerClosed = errors.New("server closed")

// Server serves the TCP control channel and the UDP state channel.
type Server struct {
	cfg      *Config
	db       *registry.Database
	files    *files.Manager
	exec     *concurrency.Executor
	ownExec  bool
	sessions *session.Manager
	metrics  *control.Metrics
	allow    *auth.AllowList
	buffers  *pool.BytePool
	logger   *zap.Logger
	closed   atomic.Bool
}

// NewServer builds the Server facade.
func NewServer(cfg *Config, db *registry.Database, fm *files.Manager, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if db == nil || fm == nil {
		return nil, errors.New("server: database and file manager are required")
	}
	s := &Server{
		cfg:      cfg,
		db:       db,
		files:    fm,
		ownExec:  true,
		sessions: session.NewManager(0),
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.exec == nil {
		s.exec = concurrency.NewExecutor(cfg.Workers, s.logger.Named("executor"))
		s.ownExec = true
	}
	if s.buffers == nil {
		s.buffers = pool.NewBytePool(cfg.BigBufferSize)
	}
	if s.allow == nil {
		s.allow = auth.Disabled()
	}
	return s, nil
}

// Sessions returns the live TCP sessions.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// Database returns the record database.
func (s *Server) Database() *registry.Database { return s.db }

// ServeTCP accepts control connections on ln until ctx is done.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	return tcp.Serve(ctx, ln, tcp.ListenerConfig{
		Authorize:   s.allow.Allowed,
		ConnHandler: s.handleConn,
		OnReject:    func(netip.AddrPort) { s.metrics.Error(control.TCPForbidden) },
		Logger:      s.logger.Named("tcp"),
	})
}

func (s *Server) handleConn(nc net.Conn) {
	if s.closed.Load() {
		_ = nc.Close()
		return
	}
	c := &conn{srv: s}
	c.s = session.New(c,
		session.WithTimeout(s.cfg.Timeout),
		session.WithBufferSize(s.cfg.BufferSize),
		session.WithRunner(s.exec),
		session.WithLogger(s.logger.Named("tcp").With(zap.Stringer("remote", nc.RemoteAddr()))),
	)
	s.sessions.Add(c.s)
	if err := c.s.Start(nc); err != nil {
		s.sessions.Remove(c.s.ID())
	}
}

// Shutdown closes every session and waits until their shutdown hooks ran, or
// ctx expires. An executor created by the server is closed afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var live []*session.Session
	s.sessions.Range(func(sess *session.Session) bool {
		live = append(live, sess)
		return true
	})
	n := s.sessions.ShutdownAll()
	s.logger.Info("server shutting down", zap.Int("sessions", n))

	var err error
	for _, sess := range live {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
	}
	if s.ownExec {
		s.exec.Close()
	}
	return err
}

// RegisterProbes publishes live state to dp.
func (s *Server) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("tcp.sessions", func() any { return s.sessions.Len() })
	dp.RegisterProbe("registry", func() any { return s.db.Stats() })
	dp.RegisterProbe("executor", func() any { return s.exec.Stats() })
	dp.RegisterProbe("transfer.buffers_in_use", func() any { return s.buffers.InUse() })
	dp.RegisterProbe("files.pending", func() any { return s.files.Strand().Pending() })
	dp.RegisterProbe("auth.prefixes", func() any { return s.allow.Len() })
}
