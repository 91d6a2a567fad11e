// File: internal/transfer/transfer.go
// Package transfer implements the segmented file transfer protocol.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A transfer moves TotalSize bytes, declared out of band, as a series of
// segments. Each segment is a SegmentHeader followed by exactly that many raw
// bytes, and is answered by one SegmentAck from the receiver. Both ends stage
// data through a bounded buffer of at most BigBufferSize bytes; file I/O is
// offloaded to a strand so the reactor never blocks on disk.

package transfer

import (
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/concurrency"
	"github.com/momentics/fleetlink/internal/wire"
	"github.com/momentics/fleetlink/pool"
)

const (
	DefaultMaxSegmentLength = 64 << 10
	DefaultBigBufferSize    = 4 << 20
)

var (
	ErrSegmentOverflow = errors.New("segment exceeds declared total")
	ErrEmptySegment    = errors.New("empty segment")
	ErrRejected        = errors.New("transfer rejected by peer")
	ErrUnexpectedAck   = errors.New("unexpected segment ack")
)

// Conn is the slice of the session engine a transfer runs on.
// *session.Session satisfies it.
type Conn interface {
	Post(task func())
	ReadInto(p []byte, onOK func([]byte), onErr func(error))
	ReadMessage(m wire.Message, onOK func(), onErr func(error))
	WriteBuffers(b net.Buffers, onOK func(), onErr func(error))
	WriteMessage(m wire.Message, onOK func(), onErr func(error))
}

// Offloader runs blocking file I/O away from the reactor.
// *concurrency.Strand satisfies it.
type Offloader interface {
	Post(task concurrency.TaskFunc)
}

// Params describe one transfer.
type Params struct {
	TotalSize        uint64
	MaxSegmentLength uint64
	BigBufferSize    int
}

func (p Params) withDefaults() Params {
	if p.MaxSegmentLength == 0 {
		p.MaxSegmentLength = DefaultMaxSegmentLength
	}
	if p.BigBufferSize <= 0 {
		p.BigBufferSize = DefaultBigBufferSize
	}
	return p
}

// stagingSize is min(TotalSize, BigBufferSize).
func (p Params) stagingSize() int {
	if p.TotalSize < uint64(p.BigBufferSize) {
		return int(p.TotalSize)
	}
	return p.BigBufferSize
}

// Option customizes a Sender or Receiver.
type Option func(*options)

type options struct {
	offload  Offloader
	buffers  *pool.BytePool
	logger   *zap.Logger
	progress func(done, total uint64)
	commit   func() error
}

// WithOffloader routes file reads and writes through o.
func WithOffloader(o Offloader) Option {
	return func(opts *options) { opts.offload = o }
}

// WithBufferPool draws the staging buffer from p.
func WithBufferPool(p *pool.BytePool) Option {
	return func(opts *options) { opts.buffers = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(opts *options) { opts.logger = l }
}

// WithProgress reports every chunk moved.
func WithProgress(fn func(done, total uint64)) Option {
	return func(opts *options) { opts.progress = fn }
}

// WithCommit makes a Receiver run fn on the offloader after the last byte
// reached the sink and before the Finished ack. A failing commit is answered
// with an Error ack.
func WithCommit(fn func() error) Option {
	return func(opts *options) { opts.commit = fn }
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) run(task func()) {
	if o.offload == nil {
		task()
		return
	}
	o.offload.Post(task)
}

func (o *options) acquire(n int) []byte {
	if o.buffers != nil {
		return o.buffers.Get(n)
	}
	return make([]byte, n)
}

func (o *options) release(buf []byte) {
	if o.buffers != nil && buf != nil {
		o.buffers.Put(buf)
	}
}

// Recoverable reports whether the session that ran a failed transfer may keep
// serving requests.
func Recoverable(err error) bool {
	return err == nil || !api.IsFatal(err)
}

// progress logs whole-percent steps.
type progress struct {
	logger  *zap.Logger
	fn      func(done, total uint64)
	total   uint64
	lastPct uint64
}

func (p *progress) update(done uint64) {
	if p.fn != nil {
		p.fn(done, p.total)
	}
	if p.total == 0 {
		return
	}
	var pct uint64
	if p.total < 100 {
		pct = done * 100 / p.total
	} else {
		pct = done / (p.total / 100)
	}
	if pct > 100 {
		pct = 100
	}
	if pct > p.lastPct {
		p.lastPct = pct
		p.logger.Debug("transfer progress", zap.Uint64("percent", pct), zap.Uint64("bytes", done))
	}
}
