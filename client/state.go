// File: client/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/wire"
)

// DefaultStateTimeout bounds one datagram round trip.
const DefaultStateTimeout = 2 * time.Second

// StateClient speaks the UDP state channel. Round trips are serialized so a
// reply is never matched to the wrong request.
type StateClient struct {
	conn    *net.UDPConn
	timeout time.Duration
	mu      sync.Mutex
	buf     []byte
}

// DialState opens a connected UDP socket to addr.
func DialState(addr string, timeout time.Duration) (*StateClient, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, api.TransportError("client", "dial-udp", err)
	}
	if timeout <= 0 {
		timeout = DefaultStateTimeout
	}
	return &StateClient{conn: conn, timeout: timeout, buf: make([]byte, 2048)}, nil
}

// Close releases the socket.
func (c *StateClient) Close() error { return c.conn.Close() }

// Echo sends payload and returns the echoed body.
func (c *StateClient) Echo(ctx context.Context, payload []byte) ([]byte, error) {
	return c.roundTrip(ctx, append([]byte{byte(wire.UDPEcho)}, payload...), wire.UDPEchoResponse)
}

// FetchState returns the rotation of a controller. ok is false when the
// server has no controller with that id registered from this address.
func (c *StateClient) FetchState(ctx context.Context, id api.ID) (rot api.Rotation, ok bool, err error) {
	reply, err := c.roundTrip(ctx, wire.Datagram(wire.UDPFetchState, &wire.FetchStateRequest{ID: id}), wire.UDPFetchStateResponse)
	if err != nil {
		return rot, false, err
	}
	switch len(reply) {
	case 0:
		return rot, false, nil
	case len(rot):
		copy(rot[:], reply)
		return rot, true, nil
	default:
		return rot, false, api.ProtocolError("client", "fetch-state",
			fmt.Errorf("%w: state reply of %d bytes", api.ErrProtocolViolation, len(reply)))
	}
}

// UpdateState publishes a rotation. The server does not answer.
func (c *StateClient) UpdateState(id api.ID, rot api.Rotation) error {
	_, err := c.conn.Write(wire.Datagram(wire.UDPUpdateState, &wire.UpdateStateRequest{ID: id, Rotation: rot}))
	if err != nil {
		return api.TransportError("client", "update-state", err)
	}
	return nil
}

// roundTrip writes req and returns the body of the first reply carrying want.
// Stray datagrams are skipped.
func (c *StateClient) roundTrip(ctx context.Context, req []byte, want wire.DatagramCode) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	if _, err := c.conn.Write(req); err != nil {
		return nil, api.TransportError("client", "udp-write", err)
	}
	for {
		n, err := c.conn.Read(c.buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, api.TransportError("client", "udp-read", api.ErrOperationTimeout)
			}
			return nil, api.TransportError("client", "udp-read", err)
		}
		if n == 0 || wire.DatagramCode(c.buf[0]) != want {
			continue
		}
		return append([]byte(nil), c.buf[1:n]...), nil
	}
}
