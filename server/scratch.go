// File: server/scratch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/fleetlink/internal/concurrency"
	"github.com/momentics/fleetlink/internal/files"
	"github.com/momentics/fleetlink/internal/wire"
)

// scratchKind tags the live variant of a connection's scratch state.
type scratchKind uint8

const (
	scratchIdle scratchKind = iota
	scratchRegisterHost
	scratchUploadMap
	scratchDownloadMap
	scratchStartWorld
	scratchStopWorld
	scratchUploadFile
	scratchDownloadFile
	scratchEcho
	scratchRegisterController
	scratchAttachController
)

// scratch is the per-exchange state of one connection. Exactly one variant is
// live at a time; reset releases whatever the previous exchange left open.
// Only the session strand touches it.
type scratch struct {
	kind scratchKind

	registerHost       wire.RegisterHostRequest
	uploadMap          wire.UploadMapRequest
	downloadMap        wire.DownloadMapRequest
	startWorld         wire.StartWorldRequest
	stopWorld          wire.StopWorldRequest
	uploadFile         wire.UploadFileRequest
	downloadFile       wire.DownloadFileRequest
	registerController wire.RegisterControllerRequest
	attachController   wire.AttachControllerRequest

	echo []byte

	upload *files.Upload
	source *files.Source
}

// begin switches to kind. The previous variant must have been reset.
func (sc *scratch) begin(kind scratchKind) { sc.kind = kind }

// request returns the request frame of the live variant.
func (sc *scratch) request() wire.Message {
	switch sc.kind {
	case scratchRegisterHost:
		return &sc.registerHost
	case scratchUploadMap:
		return &sc.uploadMap
	case scratchDownloadMap:
		return &sc.downloadMap
	case scratchStartWorld:
		return &sc.startWorld
	case scratchStopWorld:
		return &sc.stopWorld
	case scratchUploadFile:
		return &sc.uploadFile
	case scratchDownloadFile:
		return &sc.downloadFile
	case scratchRegisterController:
		return &sc.registerController
	case scratchAttachController:
		return &sc.attachController
	default:
		return nil
	}
}

// reset returns to idle. Open files are released on fileIO, after any file work
// the finished exchange queued there.
func (sc *scratch) reset(fileIO *concurrency.Strand) {
	if up := sc.upload; up != nil {
		fileIO.Post(up.Abort)
	}
	if src := sc.source; src != nil {
		fileIO.Post(func() { _ = src.Close() })
	}
	echo := sc.echo[:0]
	*sc = scratch{echo: echo}
}
