// File: server/options.go
// Functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/fleetlink/control"
	"github.com/momentics/fleetlink/internal/auth"
	"github.com/momentics/fleetlink/internal/concurrency"
	"github.com/momentics/fleetlink/pool"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the parent logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records counters into m.
func WithMetrics(m *control.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithAllowList authorizes TCP peers against a.
func WithAllowList(a *auth.AllowList) ServerOption {
	return func(s *Server) { s.allow = a }
}

// WithExecutor shares an existing reactor pool. The server does not close it.
func WithExecutor(e *concurrency.Executor) ServerOption {
	return func(s *Server) {
		s.exec = e
		s.ownExec = false
	}
}

// WithBufferPool draws transfer staging buffers from p.
func WithBufferPool(p *pool.BytePool) ServerOption {
	return func(s *Server) { s.buffers = p }
}
