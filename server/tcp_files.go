// File: server/tcp_files.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Map and file exchanges: a request frame, one response frame, then a
// segmented transfer. Opening, writing and committing files happens on the
// file strand; the session strand only moves bytes.

package server

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/files"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/transfer"
	"github.com/momentics/fleetlink/internal/wire"
)

func (c *conn) validSize(n uint64) bool {
	return n > 0 && n <= c.srv.cfg.MaxFileSize
}

// handleUploadMap receives the map of the host registered on this connection.
func (c *conn) handleUploadMap() {
	c.readRequest(scratchUploadMap, func() {
		req := c.sc.uploadMap
		res := &wire.Status{Code: wire.MapInvalidSize}
		if !c.validSize(req.TotalSize) {
			c.refuse(res, "upload-map", fmt.Errorf("%w: map size %d", api.ErrInvalidArgument, req.TotalSize))
			return
		}
		if c.hostID == api.NoID || c.hostID != req.HostID {
			res.Code = wire.MapDenyAccess
			c.refuse(res, "upload-map", fmt.Errorf("%w: map of host %s", api.ErrAccessDenied, req.HostID))
			return
		}

		var (
			up  *files.Upload
			err error
		)
		c.offload(func() { up, err = c.srv.files.CreateMap(req.HostID) }, func() {
			c.sc.upload = up
			if c.gone() {
				return
			}
			if err != nil {
				res.Code = wire.MapDenyAccess
				c.reply(res, session.Failed(err))
				return
			}
			res.Code = wire.MapAccept
			c.s.WriteMessage(res, func() { c.receive(req.TotalSize) }, c.fail)
		})
	})
}

// handleDownloadMap sends the map of any host.
func (c *conn) handleDownloadMap() {
	c.readRequest(scratchDownloadMap, func() {
		host := c.sc.downloadMap.HostID
		var (
			src *files.Source
			err error
		)
		c.offload(func() { src, err = c.srv.files.OpenMap(host) }, func() {
			c.sc.source = src
			if c.gone() {
				return
			}
			res := &wire.DownloadMapResponse{Code: wire.MapDenyAccess}
			switch {
			case errors.Is(err, api.ErrNotFound):
				c.refuse(res, "download-map", fmt.Errorf("map of host %s: %w", host, err))
			case err != nil:
				c.reply(res, session.Failed(err))
			default:
				res.Code, res.TotalSize = wire.MapAccept, src.Size()
				c.s.WriteMessage(res, func() { c.send(src) }, c.fail)
			}
		})
	})
}

// handleUploadFile receives a named file into the files directory.
func (c *conn) handleUploadFile() {
	c.readRequest(scratchUploadFile, func() {
		req := c.sc.uploadFile
		res := &wire.Status{Code: wire.FileInvalidSize}
		if !c.validSize(req.FileSize) {
			c.refuse(res, "upload-file", fmt.Errorf("%w: file size %d", api.ErrInvalidArgument, req.FileSize))
			return
		}
		if !files.ValidFileName(req.Name) {
			res.Code = wire.FileInvalidName
			c.refuse(res, "upload-file", fmt.Errorf("%w: %q", files.ErrInvalidName, req.Name))
			return
		}

		var (
			up  *files.Upload
			err error
		)
		c.offload(func() { up, err = c.srv.files.CreateFile(req.Name) }, func() {
			c.sc.upload = up
			if c.gone() {
				return
			}
			if err != nil {
				res.Code = wire.FileInvalidName
				c.reply(res, session.Failed(err))
				return
			}
			res.Code = wire.FileAccept
			c.s.WriteMessage(res, func() { c.receive(req.FileSize) }, c.fail)
		})
	})
}

// handleDownloadFile sends a named file from the files directory.
func (c *conn) handleDownloadFile() {
	c.readRequest(scratchDownloadFile, func() {
		name := c.sc.downloadFile.Name
		res := &wire.DownloadFileResponse{Code: wire.FileNotFound}
		if !files.ValidFileName(name) {
			c.refuse(res, "download-file", fmt.Errorf("%w: %q", files.ErrInvalidName, name))
			return
		}
		var (
			src *files.Source
			err error
		)
		c.offload(func() { src, err = c.srv.files.OpenFile(name) }, func() {
			c.sc.source = src
			if c.gone() {
				return
			}
			switch {
			case errors.Is(err, api.ErrNotFound):
				c.refuse(res, "download-file", fmt.Errorf("file %q: %w", name, err))
			case err != nil:
				c.reply(res, session.Failed(err))
			default:
				res.Code, res.FileSize = wire.FileDownloadAccept, src.Size()
				c.s.WriteMessage(res, func() { c.send(src) }, c.fail)
			}
		})
	})
}

// receive runs the receiver into the scratch upload, committing it before the
// final ack.
func (c *conn) receive(total uint64) {
	up := c.sc.upload
	opts := append(c.transferOptions(), transfer.WithCommit(up.Commit))
	r := transfer.NewReceiver(c.s, up, c.srv.cfg.transferParams(total), opts...)
	r.Run(func(err error) {
		c.srv.metrics.Transfer("receive", r.Received(), err)
		if err != nil {
			c.finishTransfer(err)
			return
		}
		c.sc.upload = nil
		c.s.Logger().Info("upload completed", zap.Uint64("bytes", total))
		c.s.PopAndInvoke(session.Ok(total))
	})
}

// send streams the scratch source.
func (c *conn) send(src *files.Source) {
	snd := transfer.NewSender(c.s, src, c.srv.cfg.transferParams(src.Size()), c.transferOptions()...)
	snd.Run(func(err error) {
		c.srv.metrics.Transfer("send", snd.Sent(), err)
		if err != nil {
			c.finishTransfer(err)
			return
		}
		c.s.Logger().Info("download completed", zap.Uint64("bytes", snd.Sent()))
		c.s.PopAndInvoke(session.Ok(snd.Sent()))
	})
}
