// File: internal/transfer/receiver.go
// Author: momentics <momentics@gmail.com>

package transfer

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/wire"
)

// Receiver consumes a segmented transfer into sink.
//
// The staging buffer is flushed to sink whenever it fills, so unflushed data
// never exceeds BigBufferSize. A header that would overrun the declared total
// is answered with an Error ack and fails the transfer with a protocol error.
// A sink failure keeps draining the current segment, answers it with an Error
// ack, and fails the transfer with a storage error that leaves the session usable.
// An optional commit hook runs before the Finished ack.
type Receiver struct {
	conn   Conn
	sink   io.Writer
	params Params
	opts   options

	buf      []byte
	filled   int
	received uint64
	segLeft  uint64
	sinkErr  error

	hdr wire.SegmentHeader
	ack wire.SegmentAck

	done     func(error)
	finished bool
	progress progress
}

// NewReceiver prepares a receiver. Run starts it.
func NewReceiver(conn Conn, sink io.Writer, p Params, opts ...Option) *Receiver {
	o := newOptions(opts)
	p = p.withDefaults()
	return &Receiver{
		conn:     conn,
		sink:     sink,
		params:   p,
		opts:     o,
		progress: progress{logger: o.logger, fn: o.progress, total: p.TotalSize},
	}
}

// Received returns the number of payload bytes read so far.
func (r *Receiver) Received() uint64 { return r.received }

// Run starts the transfer. done is called exactly once on the session strand,
// unless the session shuts down first.
func (r *Receiver) Run(done func(error)) {
	r.done = done
	if r.params.TotalSize == 0 {
		r.complete()
		return
	}
	r.buf = r.opts.acquire(r.params.stagingSize())
	r.readHeader()
}

func (r *Receiver) readHeader() {
	r.conn.ReadMessage(&r.hdr, r.onHeader, r.finish)
}

func (r *Receiver) onHeader() {
	switch {
	case r.hdr.Length == 0:
		r.reject(ErrEmptySegment)
	case r.hdr.Length > r.params.TotalSize-r.received:
		r.reject(fmt.Errorf("%w: segment of %d bytes after %d of %d",
			ErrSegmentOverflow, r.hdr.Length, r.received, r.params.TotalSize))
	default:
		r.segLeft = r.hdr.Length
		r.readChunk()
	}
}

func (r *Receiver) reject(err error) {
	err = api.ProtocolError("transfer", "receive", err)
	r.sendAck(wire.AckError, func() { r.finish(err) })
}

func (r *Receiver) readChunk() {
	if r.segLeft == 0 {
		r.segmentDone()
		return
	}
	n := uint64(len(r.buf) - r.filled)
	if r.segLeft < n {
		n = r.segLeft
	}
	r.conn.ReadInto(r.buf[r.filled:r.filled+int(n)], r.onChunk, r.finish)
}

func (r *Receiver) onChunk(p []byte) {
	n := uint64(len(p))
	r.filled += len(p)
	r.segLeft -= n
	r.received += n
	r.progress.update(r.received)
	if r.filled == len(r.buf) {
		r.flush(r.readChunk)
		return
	}
	r.readChunk()
}

func (r *Receiver) segmentDone() {
	if r.received == r.params.TotalSize {
		r.flush(r.complete)
		return
	}
	if r.sinkErr != nil {
		r.abortStorage()
		return
	}
	r.sendAck(wire.AckContinue, r.readHeader)
}

func (r *Receiver) complete() {
	if r.sinkErr != nil {
		r.abortStorage()
		return
	}
	if r.opts.commit == nil {
		r.sendAck(wire.AckFinished, func() { r.finish(nil) })
		return
	}
	r.opts.run(func() {
		err := r.opts.commit()
		r.conn.Post(func() {
			if err != nil {
				r.sinkErr = err
				r.abortStorage()
				return
			}
			r.sendAck(wire.AckFinished, func() { r.finish(nil) })
		})
	})
}

func (r *Receiver) abortStorage() {
	err := api.StorageError("transfer", "flush", r.sinkErr)
	r.sendAck(wire.AckError, func() { r.finish(err) })
}

// flush hands the staged bytes to the sink and continues with next once the
// write has finished. After a sink failure staged bytes are discarded.
func (r *Receiver) flush(next func()) {
	if r.filled == 0 || r.sinkErr != nil {
		r.filled = 0
		next()
		return
	}
	data := r.buf[:r.filled]
	r.opts.run(func() {
		_, err := r.sink.Write(data)
		r.conn.Post(func() {
			if err != nil {
				r.sinkErr = err
				r.opts.logger.Warn("transfer sink failed, draining", zap.Error(err),
					zap.Uint64("received", r.received))
			}
			r.filled = 0
			next()
		})
	})
}

func (r *Receiver) sendAck(code wire.AckCode, next func()) {
	r.ack.Code = code
	r.conn.WriteMessage(&r.ack, next, r.finish)
}

func (r *Receiver) finish(err error) {
	if r.finished {
		return
	}
	r.finished = true
	r.opts.release(r.buf)
	r.buf = nil
	r.done(err)
}
