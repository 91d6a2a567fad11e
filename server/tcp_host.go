// File: server/tcp_host.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/wire"
)

// handleRegisterHost binds the connection to a new or explicitly numbered host.
// A connection carries at most one host.
func (c *conn) handleRegisterHost() {
	c.readRequest(scratchRegisterHost, func() {
		req := &c.sc.registerHost
		res := &wire.RegisterHostResponse{Code: wire.Failure}
		if c.hostID != api.NoID {
			c.refuse(res, "register-host",
				fmt.Errorf("%w: connection already serves host %s", api.ErrAlreadyExists, c.hostID))
			return
		}
		name := fixedName(req.Name, wire.NameLength)
		id, ok := c.srv.db.RegisterHost(req.ID, name, c.s)
		if !ok {
			err := fmt.Errorf("%w: host table full", api.ErrResourceExhausted)
			if req.ID != api.NoID {
				err = fmt.Errorf("%w: host %s", api.ErrAlreadyExists, req.ID)
			}
			c.refuse(res, "register-host", err)
			return
		}
		c.hostID = id
		c.s.Logger().Info("host registered", zap.Stringer("host", id), zap.String("name", name))
		res.Code, res.ID = wire.Success, id
		c.reply(res, session.Ok(id))
	})
}

// handleStartWorld creates a world led by this connection's host, reachable at
// the host's address and the requested port.
func (c *conn) handleStartWorld() {
	c.readRequest(scratchStartWorld, func() {
		req := &c.sc.startWorld
		res := &wire.StartWorldResponse{Code: wire.Failure}
		if c.hostID == api.NoID {
			c.refuse(res, "start-world", fmt.Errorf("%w: no host registered", api.ErrAccessDenied))
			return
		}
		if req.Port == 0 {
			c.refuse(res, "start-world", fmt.Errorf("%w: port 0", api.ErrInvalidArgument))
			return
		}
		endpoint := netip.AddrPortFrom(c.s.RemoteAddrPort().Addr(), req.Port)
		id := c.srv.db.CreateWorld(c.hostID, endpoint)
		if id == api.NoID {
			c.refuse(res, "start-world", fmt.Errorf("%w: world not created", api.ErrResourceExhausted))
			return
		}
		res.Code, res.WorldID = wire.Success, id
		c.reply(res, session.Ok(id))
	})
}

// handleStopWorld removes a world; only its main host may stop it.
func (c *conn) handleStopWorld() {
	c.readRequest(scratchStopWorld, func() {
		req := &c.sc.stopWorld
		res := &wire.Status{Code: wire.Failure}
		if c.hostID == api.NoID || !c.srv.db.RemoveWorld(req.WorldID, c.hostID) {
			c.refuse(res, "stop-world", fmt.Errorf("%w: world %s", api.ErrAccessDenied, req.WorldID))
			return
		}
		c.s.Logger().Info("world stopped", zap.Stringer("world", req.WorldID))
		res.Code = wire.Success
		c.reply(res, session.Ok(req.WorldID))
	})
}

// handleRegisterController records a controller reachable at the peer's address.
func (c *conn) handleRegisterController() {
	c.readRequest(scratchRegisterController, func() {
		req := &c.sc.registerController
		name := fixedName(req.Name, wire.NameLength)
		id, code := c.srv.db.RegisterController(name, c.s.RemoteAddrPort().Addr())
		res := &wire.RegisterControllerResponse{Code: code, ID: id}
		if code != wire.ControllerAccepted {
			c.refuse(res, "register-controller",
				fmt.Errorf("%w: controller %q refused with code %d", api.ErrInvalidArgument, name, code))
			return
		}
		c.reply(res, session.Ok(id))
	})
}

// handleAttachController assigns a controller to this connection's host.
func (c *conn) handleAttachController() {
	c.readRequest(scratchAttachController, func() {
		req := &c.sc.attachController
		res := &wire.Status{Code: wire.Failure}
		if c.hostID == api.NoID {
			c.refuse(res, "attach-controller", fmt.Errorf("%w: no host registered", api.ErrAccessDenied))
			return
		}
		if !c.srv.db.AttachController(c.hostID, req.ControllerID) {
			c.refuse(res, "attach-controller", fmt.Errorf("%w: controller %s", api.ErrNotFound, req.ControllerID))
			return
		}
		res.Code = wire.Success
		c.reply(res, session.Ok(req.ControllerID))
	})
}
