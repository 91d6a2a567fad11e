// File: client/client.go
// Package client is the host side of the fleet protocol: a TCP control client
// driven by the session engine and a UDP state client.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The TCP client runs one exchange at a time. Each call blocks until its
// exchange terminates, the context is done, or the session goes away. An
// idle connection is kept alive with heartbeats.

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/concurrency"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/transfer"
	"github.com/momentics/fleetlink/internal/wire"
)

// ErrRefused is wrapped by every RefusedError.
var ErrRefused = errors.New("client: request refused")

// RefusedError reports a negative result code returned by the server.
type RefusedError struct {
	Request wire.RequestCode
	Code    wire.ResultCode
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("client: %s refused with code %d", e.Request, e.Code)
}

func (e *RefusedError) Unwrap() error { return ErrRefused }

// Config holds the TCP client parameters.
type Config struct {
	Addr              string        // server host:port
	Timeout           time.Duration // per socket operation, 0 uses the session default
	BufferSize        int
	HeartbeatInterval time.Duration // 0 disables keepalive
	MaxSegmentLength  uint64
	BigBufferSize     int
	Logger            *zap.Logger
}

// Client is a connected host client. Its methods are safe for concurrent use;
// exchanges are serialized.
type Client struct {
	cfg    Config
	s      *session.Session
	fileIO *concurrency.Strand
	logger *zap.Logger

	mu   sync.Mutex // held for the duration of one exchange
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

type handler struct {
	started chan error
	logger  *zap.Logger
}

func (h *handler) OnStart(*session.Session) { h.started <- nil }

func (h *handler) OnStartError(_ *session.Session, err error) { h.started <- err }

func (h *handler) OnTimeout(*session.Session) {
	h.logger.Warn("server did not answer in time")
}

func (h *handler) OnShutdown(*session.Session) {
	h.logger.Debug("client session closed")
}

// Dial connects to cfg.Addr and starts the heartbeat loop.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("client").With(zap.String("server", cfg.Addr))

	h := &handler{started: make(chan error, 1), logger: logger}
	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Timeout > 0 {
		opts = append(opts, session.WithTimeout(cfg.Timeout))
	}
	if cfg.BufferSize > 0 {
		opts = append(opts, session.WithBufferSize(cfg.BufferSize))
	}
	s := session.New(h, opts...)
	s.Connect(ctx, cfg.Addr)

	select {
	case err := <-h.started:
		if err != nil {
			s.Shutdown()
			return nil, err
		}
	case <-ctx.Done():
		s.Shutdown()
		return nil, ctx.Err()
	}

	c := &Client{
		cfg:    cfg,
		s:      s,
		fileIO: concurrency.NewStrand(nil, logger),
		logger: logger,
		stop:   make(chan struct{}),
	}
	if cfg.HeartbeatInterval > 0 {
		c.wg.Add(1)
		go c.keepalive(cfg.HeartbeatInterval)
	}
	logger.Info("connected")
	return c, nil
}

// Done is closed once the underlying session has shut down.
func (c *Client) Done() <-chan struct{} { return c.s.Done() }

// Close stops the heartbeat loop and shuts the session down.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.stop)
		c.s.Shutdown()
	})
	c.wg.Wait()
	<-c.s.Done()
	return nil
}

func (c *Client) keepalive(every time.Duration) {
	defer c.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-c.s.Done():
			return
		case <-t.C:
			// an exchange in flight already keeps the link busy
			if !c.mu.TryLock() {
				continue
			}
			_, err := session.Await[any](context.Background(), c.s, c.sendHeartbeat)
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}

// Heartbeat sends one keepalive byte.
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := do[any](ctx, c, c.sendHeartbeat)
	return err
}

func (c *Client) sendHeartbeat() {
	c.s.WriteExactly([]byte{byte(wire.Heartbeat)}, func() { c.s.PopAndInvoke(session.Ok(nil)) }, c.fail)
}

// do runs one exchange under the client lock. A context that ends mid-exchange
// leaves the stream in an unknown position, so the session is closed.
func do[T any](ctx context.Context, c *Client, exchange func()) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.IsShutdown() {
		var zero T
		return zero, api.ErrDisconnected
	}
	v, err := session.Await[T](ctx, c.s, exchange)
	if err != nil && ctx.Err() != nil {
		c.s.Shutdown()
	}
	return v, err
}

func (c *Client) fail(err error) {
	c.s.PopAndInvoke(session.Critical(err))
}

// call writes a fixed request frame and reads a fixed response frame.
func (c *Client) call(code wire.RequestCode, req, res wire.Message, then func()) {
	c.s.WriteExactly(wire.Request(code, req), func() {
		c.s.ReadMessage(res, then, c.fail)
	}, c.fail)
}

func (c *Client) refused(code wire.RequestCode, rc wire.ResultCode) {
	c.s.PopAndInvoke(session.FailedWith(rc, &RefusedError{Request: code, Code: rc}))
}

func (c *Client) params(total uint64) transfer.Params {
	return transfer.Params{
		TotalSize:        total,
		MaxSegmentLength: c.cfg.MaxSegmentLength,
		BigBufferSize:    c.cfg.BigBufferSize,
	}
}

func (c *Client) transferOptions(progress func(done, total uint64)) []transfer.Option {
	opts := []transfer.Option{
		transfer.WithOffloader(c.fileIO),
		transfer.WithLogger(c.s.Logger()),
	}
	if progress != nil {
		opts = append(opts, transfer.WithProgress(progress))
	}
	return opts
}

// finish terminates a transfer exchange.
func (c *Client) finish(n uint64, err error) {
	switch {
	case err == nil:
		c.s.PopAndInvoke(session.Ok(n))
	case transfer.Recoverable(err):
		c.s.PopAndInvoke(session.FailedWith(n, err))
	default:
		c.s.PopAndInvoke(session.Critical(err))
	}
}
