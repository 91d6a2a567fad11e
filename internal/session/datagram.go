// File: internal/session/datagram.go
// Author: momentics <momentics@gmail.com>

package session

import (
	"net/netip"
	"time"
)

// PacketWriter sends datagrams. *net.UDPConn satisfies it.
type PacketWriter interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Datagram is the handling context of one inbound UDP datagram.
type Datagram struct {
	w        PacketWriter
	remote   netip.AddrPort
	payload  []byte
	received time.Time
}

// NewDatagram wraps payload received from remote. payload must not be reused
// while the datagram is being handled.
func NewDatagram(w PacketWriter, remote netip.AddrPort, payload []byte) *Datagram {
	return &Datagram{
		w:        w,
		remote:   netip.AddrPortFrom(remote.Addr().Unmap(), remote.Port()),
		payload:  payload,
		received: time.Now(),
	}
}

// Remote returns the sender endpoint.
func (d *Datagram) Remote() netip.AddrPort { return d.remote }

// Payload returns the datagram body, code byte included.
func (d *Datagram) Payload() []byte { return d.payload }

// Received returns the arrival time.
func (d *Datagram) Received() time.Time { return d.received }

// Reply sends parts concatenated as one datagram back to the sender.
func (d *Datagram) Reply(parts ...[]byte) error {
	if len(parts) == 1 {
		_, err := d.w.WriteToUDPAddrPort(parts[0], d.remote)
		return err
	}
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	_, err := d.w.WriteToUDPAddrPort(buf, d.remote)
	return err
}
