// File: server/udp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// UDP state channel. Each datagram is a code byte and a fixed body; replies go
// back to the sender endpoint. Datagrams are handled on the reactor pool and
// never wait on each other.

package server

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/momentics/fleetlink/control"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/wire"
)

// ServeUDP reads datagrams from pc until ctx is done, then closes pc.
func (s *Server) ServeUDP(ctx context.Context, pc *net.UDPConn) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	logger := s.logger.Named("udp")
	stop := context.AfterFunc(ctx, func() { _ = pc.Close() })
	defer stop()

	var limiter *rate.Limiter
	if s.cfg.UDPRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.UDPRateLimit), max(s.cfg.UDPBurst, 1))
	}
	size := s.cfg.UDPBufferSize
	if size <= 0 {
		size = DefaultConfig().UDPBufferSize
	}
	// one spare byte tells an oversized datagram from one that fits exactly
	buf := make([]byte, size+1)
	logger.Info("udp listening", zap.Stringer("addr", pc.LocalAddr()))

	for {
		n, remote, err := pc.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.metrics.Error(control.UDPUnknownError)
			logger.Warn("udp read failed", zap.Error(err))
			continue
		}
		if limiter != nil && !limiter.Allow() {
			s.metrics.Datagram("dropped")
			continue
		}
		if n > size {
			s.metrics.Error(control.UDPInvalidRequest)
			logger.Debug("oversized datagram", zap.Stringer("remote", remote))
			continue
		}
		d := session.NewDatagram(pc, remote, append([]byte(nil), buf[:n]...))
		if err := s.exec.Submit(func() { s.handleDatagram(d, logger) }); err != nil {
			return nil
		}
	}
}

func (s *Server) handleDatagram(d *session.Datagram, logger *zap.Logger) {
	p := d.Payload()
	if len(p) == 0 {
		s.metrics.Error(control.UDPInvalidRequest)
		return
	}
	code, body := wire.DatagramCode(p[0]), p[1:]
	s.metrics.Datagram(code.String())

	var err error
	switch code {
	case wire.UDPEcho:
		err = d.Reply([]byte{byte(wire.UDPEchoResponse)}, body)
	case wire.UDPFetchState:
		var req wire.FetchStateRequest
		if wire.Unmarshal(body, &req) != nil {
			s.metrics.Error(control.UDPInvalidRequest)
			return
		}
		head := []byte{byte(wire.UDPFetchStateResponse)}
		if rot, ok := s.db.FetchRotation(req.ID, d.Remote().Addr()); ok {
			err = d.Reply(head, rot[:])
		} else {
			err = d.Reply(head)
		}
	case wire.UDPUpdateState:
		var req wire.UpdateStateRequest
		if wire.Unmarshal(body, &req) != nil {
			s.metrics.Error(control.UDPInvalidRequest)
			return
		}
		if !s.db.UpdateRotation(req.ID, req.Rotation) {
			s.metrics.Error(control.UDPInvalidRequest)
			logger.Debug("state update for unknown controller", zap.Stringer("controller", req.ID))
		}
	default:
		s.metrics.Error(control.UDPUnknownCode)
		logger.Debug("unknown datagram code", zap.Stringer("code", code), zap.Stringer("remote", d.Remote()))
		return
	}
	if err != nil {
		s.metrics.Error(control.UDPUnknownError)
		logger.Warn("udp reply failed", zap.Stringer("remote", d.Remote()), zap.Error(err))
	}
}
