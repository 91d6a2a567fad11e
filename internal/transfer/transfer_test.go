package transfer_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/concurrency"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/transfer"
	"github.com/momentics/fleetlink/internal/wire"
	"github.com/momentics/fleetlink/pool"
)

const waitFor = 5 * time.Second

type nopHandler struct{}

func (nopHandler) OnStart(*session.Session)             {}
func (nopHandler) OnStartError(*session.Session, error) {}
func (nopHandler) OnTimeout(*session.Session)           {}
func (nopHandler) OnShutdown(*session.Session)          {}

func startSession(t *testing.T, c net.Conn) *session.Session {
	t.Helper()
	s := session.New(nopHandler{}, session.WithTimeout(waitFor))
	require.NoError(t, s.Start(c))
	t.Cleanup(s.Shutdown)
	return s
}

// sessionAndPeer returns a session on one end of a pipe and the raw other end.
func sessionAndPeer(t *testing.T) (*session.Session, net.Conn) {
	t.Helper()
	local, peer := net.Pipe()
	t.Cleanup(func() { _ = peer.Close() })
	return startSession(t, local), peer
}

// sink records writes; it fails every write once failAfter bytes were accepted.
type sink struct {
	mu        sync.Mutex
	data      bytes.Buffer
	maxWrite  int
	writes    int
	failAfter int
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && s.data.Len() >= s.failAfter {
		return 0, errors.New("disk full")
	}
	s.writes++
	if len(p) > s.maxWrite {
		s.maxWrite = len(p)
	}
	return s.data.Write(p)
}

func (s *sink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data.Bytes()...)
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitFor):
		t.Fatal("transfer did not finish")
		return nil
	}
}

func readHeader(t *testing.T, c net.Conn) uint64 {
	t.Helper()
	var b [8]byte
	_, err := io.ReadFull(c, b[:])
	require.NoError(t, err)
	return binary.LittleEndian.Uint64(b[:])
}

func writeHeader(t *testing.T, c net.Conn, n uint64) {
	t.Helper()
	_, err := c.Write(wire.Marshal(&wire.SegmentHeader{Length: n}))
	require.NoError(t, err)
}

func readAck(t *testing.T, c net.Conn) wire.AckCode {
	t.Helper()
	var b [1]byte
	_, err := io.ReadFull(c, b[:])
	require.NoError(t, err)
	return wire.AckCode(b[0])
}

func writeAck(t *testing.T, c net.Conn, code wire.AckCode) {
	t.Helper()
	_, err := c.Write([]byte{byte(code)})
	require.NoError(t, err)
}

func TestSenderSplitsTenBytesIntoFourFourTwo(t *testing.T) {
	s, peer := sessionAndPeer(t)
	src := []byte("0123456789")
	params := transfer.Params{TotalSize: 10, MaxSegmentLength: 4, BigBufferSize: 4}

	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewSender(s, bytes.NewReader(src), params).Run(func(err error) { done <- err })
	})

	var sizes []uint64
	var got []byte
	for received := uint64(0); received < 10; {
		n := readHeader(t, peer)
		sizes = append(sizes, n)
		chunk := make([]byte, n)
		_, err := io.ReadFull(peer, chunk)
		require.NoError(t, err)
		got = append(got, chunk...)
		received += n
		if received < 10 {
			writeAck(t, peer, wire.AckContinue)
		} else {
			writeAck(t, peer, wire.AckFinished)
		}
	}

	require.NoError(t, waitErr(t, done))
	assert.Equal(t, []uint64{4, 4, 2}, sizes)
	assert.Equal(t, src, got)
}

func TestReceiverAcksContinueContinueFinished(t *testing.T) {
	s, peer := sessionAndPeer(t)
	out := &sink{}
	params := transfer.Params{TotalSize: 10, MaxSegmentLength: 4, BigBufferSize: 4}

	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewReceiver(s, out, params).Run(func(err error) { done <- err })
	})

	src := []byte("0123456789")
	var acks []wire.AckCode
	for off := 0; off < len(src); off += 4 {
		end := min(off+4, len(src))
		writeHeader(t, peer, uint64(end-off))
		_, err := peer.Write(src[off:end])
		require.NoError(t, err)
		acks = append(acks, readAck(t, peer))
	}

	require.NoError(t, waitErr(t, done))
	assert.Equal(t, []wire.AckCode{wire.AckContinue, wire.AckContinue, wire.AckFinished}, acks)
	assert.Equal(t, src, out.bytes())
	assert.LessOrEqual(t, out.maxWrite, 4)
}

func TestRoundTripReproducesPayload(t *testing.T) {
	files := concurrency.NewStrand(nil, nil)
	for _, size := range []int{0, 1, 7, 100, 1000} {
		for _, capacity := range []int{1, 3, 64} {
			for _, seg := range []uint64{5, 1000} {
				name := fmt.Sprintf("size=%d/cap=%d/seg=%d", size, capacity, seg)
				t.Run(name, func(t *testing.T) {
					a, b := net.Pipe()
					sender := startSession(t, a)
					receiver := startSession(t, b)

					src := make([]byte, size)
					for i := range src {
						src[i] = byte(i * 31)
					}
					params := transfer.Params{TotalSize: uint64(size), MaxSegmentLength: seg, BigBufferSize: capacity}
					out := &sink{}
					buffers := pool.NewBytePool(capacity)

					sent := make(chan error, 1)
					received := make(chan error, 1)
					receiver.Post(func() {
						transfer.NewReceiver(receiver, out, params,
							transfer.WithOffloader(files), transfer.WithBufferPool(buffers),
						).Run(func(err error) { received <- err })
					})
					sender.Post(func() {
						transfer.NewSender(sender, bytes.NewReader(src), params,
							transfer.WithOffloader(files), transfer.WithBufferPool(buffers),
						).Run(func(err error) { sent <- err })
					})

					require.NoError(t, waitErr(t, received))
					require.NoError(t, waitErr(t, sent))
					assert.True(t, bytes.Equal(src, out.bytes()), "payload differs")
					assert.LessOrEqual(t, out.maxWrite, capacity)
					assert.Equal(t, int64(0), buffers.InUse())
				})
			}
		}
	}
}

func TestReceiverRejectsOverflowingHeader(t *testing.T) {
	s, peer := sessionAndPeer(t)
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewReceiver(s, &sink{}, transfer.Params{TotalSize: 5, BigBufferSize: 64}).
			Run(func(err error) { done <- err })
	})

	writeHeader(t, peer, 6)
	assert.Equal(t, wire.AckError, readAck(t, peer))

	err := waitErr(t, done)
	assert.ErrorIs(t, err, transfer.ErrSegmentOverflow)
	assert.False(t, transfer.Recoverable(err))
}

func TestReceiverRejectsOverflowAfterPartialTransfer(t *testing.T) {
	s, peer := sessionAndPeer(t)
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewReceiver(s, &sink{}, transfer.Params{TotalSize: 6, BigBufferSize: 2}).
			Run(func(err error) { done <- err })
	})

	writeHeader(t, peer, 4)
	_, err := peer.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, wire.AckContinue, readAck(t, peer))

	writeHeader(t, peer, 3)
	assert.Equal(t, wire.AckError, readAck(t, peer))
	assert.ErrorIs(t, waitErr(t, done), transfer.ErrSegmentOverflow)
}

func TestReceiverRejectsEmptySegment(t *testing.T) {
	s, peer := sessionAndPeer(t)
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewReceiver(s, &sink{}, transfer.Params{TotalSize: 5}).
			Run(func(err error) { done <- err })
	})

	writeHeader(t, peer, 0)
	assert.Equal(t, wire.AckError, readAck(t, peer))
	assert.ErrorIs(t, waitErr(t, done), transfer.ErrEmptySegment)
}

func TestReceiverZeroLengthFinishesImmediately(t *testing.T) {
	s, peer := sessionAndPeer(t)
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewReceiver(s, &sink{}, transfer.Params{}).Run(func(err error) { done <- err })
	})

	assert.Equal(t, wire.AckFinished, readAck(t, peer))
	require.NoError(t, waitErr(t, done))
}

func TestReceiverSinkFailureKeepsSessionUsable(t *testing.T) {
	s, peer := sessionAndPeer(t)
	out := &sink{failAfter: 2}
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewReceiver(s, out, transfer.Params{TotalSize: 8, BigBufferSize: 2}).
			Run(func(err error) { done <- err })
	})

	writeHeader(t, peer, 4)
	_, err := peer.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, wire.AckError, readAck(t, peer))

	err = waitErr(t, done)
	assert.Equal(t, api.ClassStorage, api.Classify(err))
	assert.True(t, transfer.Recoverable(err))
	assert.False(t, s.IsShutdown())
}

func TestSenderAbortsOnErrorAck(t *testing.T) {
	s, peer := sessionAndPeer(t)
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewSender(s, bytes.NewReader([]byte("abcdef")), transfer.Params{TotalSize: 6, MaxSegmentLength: 3}).
			Run(func(err error) { done <- err })
	})

	n := readHeader(t, peer)
	_, err := io.ReadFull(peer, make([]byte, n))
	require.NoError(t, err)
	writeAck(t, peer, wire.AckError)

	err = waitErr(t, done)
	assert.ErrorIs(t, err, transfer.ErrRejected)
	assert.True(t, transfer.Recoverable(err))
}

func TestSenderRejectsEarlyFinished(t *testing.T) {
	s, peer := sessionAndPeer(t)
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewSender(s, bytes.NewReader([]byte("abcdef")), transfer.Params{TotalSize: 6, MaxSegmentLength: 3}).
			Run(func(err error) { done <- err })
	})

	n := readHeader(t, peer)
	_, err := io.ReadFull(peer, make([]byte, n))
	require.NoError(t, err)
	writeAck(t, peer, wire.AckFinished)

	err = waitErr(t, done)
	assert.ErrorIs(t, err, transfer.ErrUnexpectedAck)
	assert.False(t, transfer.Recoverable(err))
}

func TestSenderZeroLengthAwaitsFinished(t *testing.T) {
	s, peer := sessionAndPeer(t)
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewSender(s, bytes.NewReader(nil), transfer.Params{}).Run(func(err error) { done <- err })
	})
	writeAck(t, peer, wire.AckFinished)
	require.NoError(t, waitErr(t, done))
}

func TestSenderShortSourceIsFatal(t *testing.T) {
	s, _ := sessionAndPeer(t)
	done := make(chan error, 1)
	s.Post(func() {
		transfer.NewSender(s, bytes.NewReader([]byte("ab")), transfer.Params{TotalSize: 5}).
			Run(func(err error) { done <- err })
	})
	err := waitErr(t, done)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, transfer.Recoverable(err))
}

func TestReceiverCommitsBeforeFinishedAck(t *testing.T) {
	s, peer := sessionAndPeer(t)
	out := &sink{}
	params := transfer.Params{TotalSize: 6, MaxSegmentLength: 6, BigBufferSize: 6}

	var committed []byte
	done := make(chan error, 1)
	s.Post(func() {
		commit := transfer.WithCommit(func() error {
			committed = out.bytes()
			return nil
		})
		transfer.NewReceiver(s, out, params, commit).Run(func(err error) { done <- err })
	})

	writeHeader(t, peer, 6)
	_, err := peer.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, wire.AckFinished, readAck(t, peer))
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, []byte("abcdef"), committed, "commit saw every byte before the ack")
}

func TestReceiverFailedCommitAnswersError(t *testing.T) {
	s, peer := sessionAndPeer(t)
	params := transfer.Params{TotalSize: 3, MaxSegmentLength: 3, BigBufferSize: 3}

	done := make(chan error, 1)
	s.Post(func() {
		commit := transfer.WithCommit(func() error { return errors.New("rename failed") })
		transfer.NewReceiver(s, &sink{}, params, commit).Run(func(err error) { done <- err })
	})

	writeHeader(t, peer, 3)
	_, err := peer.Write([]byte("xyz"))
	require.NoError(t, err)
	assert.Equal(t, wire.AckError, readAck(t, peer))
	err = waitErr(t, done)
	require.Error(t, err)
	assert.Equal(t, api.ClassStorage, api.Classify(err))
	assert.True(t, transfer.Recoverable(err))
}
