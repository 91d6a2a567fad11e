// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp provides the TCP acceptor: it owns the listening socket, filters
// peers and hands accepted connections to a handler on their own goroutine.

package tcp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"
)

// ListenerConfig holds configuration for the acceptor.
type ListenerConfig struct {
	// Authorize rejects peers before any byte is read. Nil accepts everyone.
	Authorize func(netip.Addr) bool
	// ConnHandler receives every authorized connection and owns it.
	ConnHandler func(net.Conn)
	// OnReject is told about every refused peer.
	OnReject func(netip.AddrPort)
	Logger   *zap.Logger
}

const (
	minBackoff = 5 * time.Millisecond
	maxBackoff = time.Second
)

// Serve accepts on ln until ctx is done, then closes ln. It returns nil on a
// context-driven stop.
func Serve(ctx context.Context, ln net.Listener, cfg ListenerConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	logger.Info("tcp listening", zap.Stringer("addr", ln.Addr()))

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// accept errors such as EMFILE are transient; back off and retry
			if backoff == 0 {
				backoff = minBackoff
			} else if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			logger.Warn("accept error", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		remote := remoteAddrPort(conn)
		if cfg.Authorize != nil && !cfg.Authorize(remote.Addr()) {
			logger.Info("connection refused by allow-list", zap.Stringer("remote", remote))
			_ = conn.Close()
			if cfg.OnReject != nil {
				cfg.OnReject(remote)
			}
			continue
		}
		go handleConn(conn, cfg.ConnHandler, logger)
	}
}

// handleConn hands conn to handler, closing it if the handler panics.
func handleConn(conn net.Conn, handler func(net.Conn), logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in connection handler", zap.Any("panic", r))
			_ = conn.Close()
		}
	}()
	handler(conn)
}

func remoteAddrPort(conn net.Conn) netip.AddrPort {
	if a, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ap := a.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	ap, _ := netip.ParseAddrPort(conn.RemoteAddr().String())
	return ap
}
