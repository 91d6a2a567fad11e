// File: server/tcp_conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// conn is the request loop of one TCP control connection. It reads a single
// request code, runs the matching exchange and, once the exchange terminates,
// reads the next code. Every exchange pushes exactly one continuation on the
// session callback stack and ends with exactly one PopAndInvoke: Good and Error
// outcomes resume the loop, a CriticalError outcome ends the session.

package server

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/control"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/transfer"
	"github.com/momentics/fleetlink/internal/wire"
)

type conn struct {
	srv *Server
	s   *session.Session

	hostID  api.ID // host bound to this connection, api.NoID until RegisterHost
	code    wire.RequestCode
	sc      scratch
	started bool
}

func (c *conn) OnStart(*session.Session) {
	c.started = true
	c.srv.metrics.ConnOpened()
	c.s.Logger().Info("connection accepted")
	c.awaitRequest()
}

func (c *conn) OnStartError(_ *session.Session, err error) {
	c.s.Logger().Warn("connection setup failed", zap.Error(err))
}

func (c *conn) OnTimeout(*session.Session) {
	c.srv.metrics.Error(control.TCPTimeout)
}

func (c *conn) OnShutdown(*session.Session) {
	c.sc.reset(c.srv.files.Strand())
	c.srv.sessions.Remove(c.s.ID())
	if c.hostID != api.NoID {
		c.srv.db.RemoveHost(c.hostID)
	}
	if c.started {
		c.srv.metrics.ConnClosed()
	}
	c.s.Logger().Info("connection closed", zap.Stringer("host", c.hostID))
}

func (c *conn) awaitRequest() {
	c.sc.reset(c.srv.files.Strand())
	c.s.ReadExactly(1, func(p []byte) {
		c.dispatch(wire.RequestCode(p[0]))
	}, c.idleError)
}

func (c *conn) idleError(err error) {
	if errors.Is(err, io.EOF) {
		c.s.Logger().Debug("peer closed the connection")
		return
	}
	c.srv.metrics.Error(control.TCPConnectionBroken)
	c.s.Logger().Warn("connection broken", zap.Error(err))
}

func (c *conn) dispatch(code wire.RequestCode) {
	if code == wire.Heartbeat {
		c.awaitRequest()
		return
	}
	var handle func()
	switch code {
	case wire.RegisterHost:
		handle = c.handleRegisterHost
	case wire.UploadMap:
		handle = c.handleUploadMap
	case wire.DownloadMap:
		handle = c.handleDownloadMap
	case wire.StartWorld:
		handle = c.handleStartWorld
	case wire.StopWorld:
		handle = c.handleStopWorld
	case wire.UploadFile:
		handle = c.handleUploadFile
	case wire.DownloadFile:
		handle = c.handleDownloadFile
	case wire.Echo:
		handle = c.handleEcho
	case wire.RegisterController:
		handle = c.handleRegisterController
	case wire.AttachController:
		handle = c.handleAttachController
	default:
		c.srv.metrics.Error(control.TCPInvalidRequest)
		c.s.Logger().Warn("request code not recognized", zap.Stringer("code", code))
		c.s.Shutdown()
		return
	}
	c.code = code
	c.s.Logger().Debug("handling request", zap.Stringer("code", code))
	c.s.Push(c.exchangeDone)
	handle()
}

// exchangeDone is the continuation of every exchange.
func (c *conn) exchangeDone(o session.Outcome) {
	logger := c.s.Logger().With(zap.Stringer("code", c.code))
	switch o.Status {
	case session.Good:
		logger.Debug("request completed")
		c.awaitRequest()
	case session.Error:
		logger.Info("request refused", zap.Error(o.Err))
		c.count(o.Err)
		c.awaitRequest()
	default:
		if !errors.Is(o.Err, api.ErrDisconnected) {
			logger.Warn("request failed", zap.Error(o.Err))
			c.count(o.Err)
		}
		c.s.Shutdown()
	}
}

// count maps a failed exchange onto the error counters.
func (c *conn) count(err error) {
	m := c.srv.metrics
	var ce *api.ClassifiedError
	fromTransfer := errors.As(err, &ce) && ce.Component == "transfer"
	switch api.Classify(err) {
	case api.ClassValidation:
	case api.ClassStorage:
		if errors.Is(err, transfer.ErrRejected) {
			m.Error(control.TCPTransferError)
		} else {
			m.Error(control.FileSystemError)
		}
	case api.ClassProtocol:
		if fromTransfer {
			m.Error(control.TCPTransferError)
		} else {
			m.Error(control.TCPInvalidRequest)
		}
	default:
		switch {
		case errors.Is(err, api.ErrOperationTimeout):
			m.Error(control.TCPTimeout)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			m.Error(control.TCPUnexpectedClose)
		default:
			m.Error(control.TCPConnectionBroken)
		}
	}
}

// fail terminates the live exchange with a critical outcome.
func (c *conn) fail(err error) {
	c.s.PopAndInvoke(session.Critical(err))
}

// readRequest reads the request frame of kind into the scratch state.
func (c *conn) readRequest(kind scratchKind, then func()) {
	c.sc.begin(kind)
	c.s.ReadMessage(c.sc.request(), then, c.fail)
}

// reply writes m and terminates the exchange with o.
func (c *conn) reply(m wire.Message, o session.Outcome) {
	c.s.WriteMessage(m, func() { c.s.PopAndInvoke(o) }, c.fail)
}

// refuse answers a request the server will not serve; the connection stays up.
func (c *conn) refuse(m wire.Message, op string, err error) {
	c.reply(m, session.Failed(api.ValidationError("tcp", op, err)))
}

// offload runs fn on the file strand and then on the session strand.
func (c *conn) offload(fn, then func()) {
	c.srv.files.Strand().Post(func() {
		fn()
		c.s.Post(then)
	})
}

// gone reports whether the session ended while work was offloaded, releasing
// whatever the scratch state holds.
func (c *conn) gone() bool {
	if !c.s.IsShutdown() {
		return false
	}
	c.sc.reset(c.srv.files.Strand())
	return true
}

func (c *conn) transferOptions() []transfer.Option {
	return []transfer.Option{
		transfer.WithOffloader(c.srv.files.Strand()),
		transfer.WithBufferPool(c.srv.buffers),
		transfer.WithLogger(c.s.Logger()),
	}
}

// finishTransfer terminates a transfer exchange that failed with err.
func (c *conn) finishTransfer(err error) {
	if transfer.Recoverable(err) {
		c.s.PopAndInvoke(session.Failed(err))
		return
	}
	c.fail(err)
}

func (c *conn) handleEcho() {
	c.sc.begin(scratchEcho)
	c.readEcho()
}

// readEcho collects bytes up to the NUL terminator and echoes them back with it.
func (c *conn) readEcho() {
	c.s.ReadExactly(1, func(p []byte) {
		if p[0] == 0 {
			c.sc.echo = append(c.sc.echo, 0)
			n := len(c.sc.echo) - 1
			c.s.WriteExactly(c.sc.echo, func() { c.s.PopAndInvoke(session.Ok(n)) }, c.fail)
			return
		}
		if len(c.sc.echo) == wire.MaxEchoLength {
			c.fail(api.ProtocolError("tcp", "echo",
				fmt.Errorf("%w: echo exceeds %d bytes", api.ErrProtocolViolation, wire.MaxEchoLength)))
			return
		}
		c.sc.echo = append(c.sc.echo, p[0])
		c.readEcho()
	}, c.fail)
}

// fixedName caps a decoded name field so it always fits with its terminator.
func fixedName(s string, width int) string {
	if len(s) > width-1 {
		return s[:width-1]
	}
	return s
}
