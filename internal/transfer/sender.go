// File: internal/transfer/sender.go
// Author: momentics <momentics@gmail.com>

package transfer

import (
	"fmt"
	"io"
	"net"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/wire"
)

// Sender streams TotalSize bytes of src as segments of at most MaxSegmentLength.
// Chunks go to the socket straight from the staging buffer, which is refilled
// from src at the send offset whenever it empties.
type Sender struct {
	conn   Conn
	src    io.ReaderAt
	params Params
	opts   options

	buf    []byte
	pos    int // next unsent byte in buf
	end    int // end of valid data in buf
	loaded uint64
	sent   uint64

	segLeft uint64
	hdr     wire.SegmentHeader
	ack     wire.SegmentAck

	done     func(error)
	finished bool
	progress progress
}

// NewSender prepares a sender. Run starts it.
func NewSender(conn Conn, src io.ReaderAt, p Params, opts ...Option) *Sender {
	o := newOptions(opts)
	p = p.withDefaults()
	return &Sender{
		conn:     conn,
		src:      src,
		params:   p,
		opts:     o,
		progress: progress{logger: o.logger, fn: o.progress, total: p.TotalSize},
	}
}

// Sent returns the number of payload bytes written so far.
func (s *Sender) Sent() uint64 { return s.sent }

// Run starts the transfer. done is called exactly once on the session strand,
// unless the session shuts down first.
func (s *Sender) Run(done func(error)) {
	s.done = done
	if s.params.TotalSize == 0 {
		s.awaitAck()
		return
	}
	s.buf = s.opts.acquire(s.params.stagingSize())
	s.startSegment()
}

func (s *Sender) startSegment() {
	seg := s.params.TotalSize - s.sent
	if seg > s.params.MaxSegmentLength {
		seg = s.params.MaxSegmentLength
	}
	s.segLeft = seg
	s.hdr.Length = seg
	s.ensure(func() { s.writeChunk(true) })
}

// ensure makes sure the staging buffer holds unsent bytes.
func (s *Sender) ensure(next func()) {
	if s.pos < s.end {
		next()
		return
	}
	s.fill(next)
}

func (s *Sender) fill(next func()) {
	want := s.params.TotalSize - s.loaded
	if want > uint64(len(s.buf)) {
		want = uint64(len(s.buf))
	}
	dst := s.buf[:want]
	off := int64(s.loaded)
	s.opts.run(func() {
		n, err := s.src.ReadAt(dst, off)
		s.conn.Post(func() {
			if n < len(dst) {
				if err == nil || err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				// the peer expects a full segment; the stream cannot be resumed
				s.finish(api.ProtocolError("transfer", "read source",
					fmt.Errorf("read %d of %d bytes at offset %d: %w", n, len(dst), off, err)))
				return
			}
			s.pos, s.end = 0, n
			s.loaded += uint64(n)
			next()
		})
	})
}

func (s *Sender) writeChunk(withHeader bool) {
	n := s.end - s.pos
	if uint64(n) > s.segLeft {
		n = int(s.segLeft)
	}
	chunk := s.buf[s.pos : s.pos+n]
	bufs := net.Buffers{chunk}
	if withHeader {
		bufs = net.Buffers{wire.Marshal(&s.hdr), chunk}
	}
	s.conn.WriteBuffers(bufs, func() {
		s.pos += n
		s.sent += uint64(n)
		s.segLeft -= uint64(n)
		s.progress.update(s.sent)
		if s.segLeft == 0 {
			s.awaitAck()
			return
		}
		s.ensure(func() { s.writeChunk(false) })
	}, s.finish)
}

func (s *Sender) awaitAck() {
	s.conn.ReadMessage(&s.ack, s.onAck, s.finish)
}

func (s *Sender) onAck() {
	switch {
	case s.ack.Code == wire.AckError:
		s.finish(api.StorageError("transfer", "send",
			fmt.Errorf("%w after %d of %d bytes", ErrRejected, s.sent, s.params.TotalSize)))
	case s.ack.Code == wire.AckContinue && s.sent < s.params.TotalSize:
		s.startSegment()
	case s.ack.Code == wire.AckFinished && s.sent == s.params.TotalSize:
		s.finish(nil)
	default:
		s.finish(api.ProtocolError("transfer", "send",
			fmt.Errorf("%w: %s after %d of %d bytes", ErrUnexpectedAck, s.ack.Code, s.sent, s.params.TotalSize)))
	}
}

func (s *Sender) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.opts.release(s.buf)
	s.buf = nil
	s.done(err)
}
