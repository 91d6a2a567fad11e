// File: client/exchanges.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/transfer"
	"github.com/momentics/fleetlink/internal/wire"
)

// Echo sends msg and returns what the server echoed back.
func (c *Client) Echo(ctx context.Context, msg string) (string, error) {
	if len(msg) > wire.MaxEchoLength || bytes.IndexByte([]byte(msg), 0) >= 0 {
		return "", fmt.Errorf("%w: echo payload of %d bytes", api.ErrInvalidArgument, len(msg))
	}
	frame := make([]byte, 0, len(msg)+2)
	frame = append(frame, byte(wire.Echo))
	frame = append(frame, msg...)
	frame = append(frame, 0)

	return do[string](ctx, c, func() {
		c.s.WriteExactly(frame, func() {
			c.s.ReadExactly(len(msg)+1, func(p []byte) {
				if p[len(p)-1] != 0 {
					c.fail(api.ProtocolError("client", "echo",
						fmt.Errorf("%w: echo reply not terminated", api.ErrProtocolViolation)))
					return
				}
				c.s.PopAndInvoke(session.Ok(string(p[:len(p)-1])))
			}, c.fail)
		}, c.fail)
	})
}

// RegisterHost registers this connection as a host. id == api.NoID lets the
// server pick one.
func (c *Client) RegisterHost(ctx context.Context, id api.ID, name string) (api.ID, error) {
	if len(name) >= wire.NameLength {
		return api.NoID, fmt.Errorf("%w: host name longer than %d bytes", api.ErrInvalidArgument, wire.NameLength-1)
	}
	var res wire.RegisterHostResponse
	return do[api.ID](ctx, c, func() {
		c.call(wire.RegisterHost, &wire.RegisterHostRequest{ID: id, Name: name}, &res, func() {
			if res.Code != wire.Success {
				c.refused(wire.RegisterHost, res.Code)
				return
			}
			c.s.PopAndInvoke(session.Ok(res.ID))
		})
	})
}

// StartWorld announces a world served by this host on port.
func (c *Client) StartWorld(ctx context.Context, port uint16) (api.ID, error) {
	var res wire.StartWorldResponse
	return do[api.ID](ctx, c, func() {
		c.call(wire.StartWorld, &wire.StartWorldRequest{Port: port}, &res, func() {
			if res.Code != wire.Success {
				c.refused(wire.StartWorld, res.Code)
				return
			}
			c.s.PopAndInvoke(session.Ok(res.WorldID))
		})
	})
}

// StopWorld removes a world started by this host.
func (c *Client) StopWorld(ctx context.Context, world api.ID) error {
	return c.status(ctx, wire.StopWorld, &wire.StopWorldRequest{WorldID: world}, wire.Success)
}

// RegisterController records a controller reachable at this client's address.
func (c *Client) RegisterController(ctx context.Context, name string) (api.ID, error) {
	var res wire.RegisterControllerResponse
	return do[api.ID](ctx, c, func() {
		c.call(wire.RegisterController, &wire.RegisterControllerRequest{Name: name}, &res, func() {
			if res.Code != wire.ControllerAccepted {
				c.refused(wire.RegisterController, res.Code)
				return
			}
			c.s.PopAndInvoke(session.Ok(res.ID))
		})
	})
}

// AttachController assigns a controller to this host.
func (c *Client) AttachController(ctx context.Context, controller api.ID) error {
	return c.status(ctx, wire.AttachController, &wire.AttachControllerRequest{ControllerID: controller}, wire.Success)
}

func (c *Client) status(ctx context.Context, code wire.RequestCode, req wire.Message, want wire.ResultCode) error {
	var res wire.Status
	_, err := do[any](ctx, c, func() {
		c.call(code, req, &res, func() {
			if res.Code != want {
				c.refused(code, res.Code)
				return
			}
			c.s.PopAndInvoke(session.Ok(nil))
		})
	})
	return err
}

// UploadMap sends size bytes of src as the map of host.
func (c *Client) UploadMap(ctx context.Context, host api.ID, src io.ReaderAt, size uint64, progress func(done, total uint64)) error {
	req := &wire.UploadMapRequest{HostID: host, TotalSize: size}
	_, err := c.upload(ctx, wire.UploadMap, req, wire.MapAccept, src, size, progress)
	return err
}

// UploadFile sends size bytes of src stored under name.
func (c *Client) UploadFile(ctx context.Context, name string, src io.ReaderAt, size uint64, progress func(done, total uint64)) error {
	if len(name) >= wire.FileNameLength {
		return fmt.Errorf("%w: file name longer than %d bytes", api.ErrInvalidArgument, wire.FileNameLength-1)
	}
	req := &wire.UploadFileRequest{Name: name, FileSize: size}
	_, err := c.upload(ctx, wire.UploadFile, req, wire.FileAccept, src, size, progress)
	return err
}

func (c *Client) upload(ctx context.Context, code wire.RequestCode, req wire.Message, accept wire.ResultCode,
	src io.ReaderAt, size uint64, progress func(done, total uint64)) (uint64, error) {
	var res wire.Status
	return do[uint64](ctx, c, func() {
		c.call(code, req, &res, func() {
			if res.Code != accept {
				c.refused(code, res.Code)
				return
			}
			snd := transfer.NewSender(c.s, src, c.params(size), c.transferOptions(progress)...)
			snd.Run(func(err error) { c.finish(snd.Sent(), err) })
		})
	})
}

// DownloadMap writes the map of host to dst and returns its size.
func (c *Client) DownloadMap(ctx context.Context, host api.ID, dst io.Writer, progress func(done, total uint64)) (uint64, error) {
	var res wire.DownloadMapResponse
	return do[uint64](ctx, c, func() {
		c.call(wire.DownloadMap, &wire.DownloadMapRequest{HostID: host}, &res, func() {
			if res.Code != wire.MapAccept {
				c.refused(wire.DownloadMap, res.Code)
				return
			}
			c.receive(dst, res.TotalSize, progress)
		})
	})
}

// DownloadFile writes the named file to dst and returns its size.
func (c *Client) DownloadFile(ctx context.Context, name string, dst io.Writer, progress func(done, total uint64)) (uint64, error) {
	if len(name) >= wire.FileNameLength {
		return 0, fmt.Errorf("%w: file name longer than %d bytes", api.ErrInvalidArgument, wire.FileNameLength-1)
	}
	var res wire.DownloadFileResponse
	return do[uint64](ctx, c, func() {
		c.call(wire.DownloadFile, &wire.DownloadFileRequest{Name: name}, &res, func() {
			if res.Code != wire.FileDownloadAccept {
				c.refused(wire.DownloadFile, res.Code)
				return
			}
			c.receive(dst, res.FileSize, progress)
		})
	})
}

func (c *Client) receive(dst io.Writer, total uint64, progress func(done, total uint64)) {
	r := transfer.NewReceiver(c.s, dst, c.params(total), c.transferOptions(progress)...)
	r.Run(func(err error) { c.finish(r.Received(), err) })
}
