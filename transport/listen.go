// File: transport/listen.go
// Package transport opens the server sockets.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Options tune listening sockets. Zero values keep the OS defaults.
type Options struct {
	// ReuseAddr lets a restarted server bind while old connections linger.
	ReuseAddr bool
	// ReusePort allows several sockets on one port (unix only).
	ReusePort bool
	// KeepAlive is the TCP keep-alive period of accepted connections; negative disables it.
	KeepAlive time.Duration
	// RecvBuffer and SendBuffer set SO_RCVBUF and SO_SNDBUF in bytes.
	RecvBuffer int
	SendBuffer int
}

func (o Options) listenConfig() net.ListenConfig {
	return net.ListenConfig{
		KeepAlive: o.KeepAlive,
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) { serr = applySocketOptions(fd, o) }); err != nil {
				return err
			}
			if serr != nil {
				return fmt.Errorf("socket options for %s %s: %w", network, address, serr)
			}
			return nil
		},
	}
}

// ListenTCP opens a TCP listener on addr.
func ListenTCP(ctx context.Context, addr string, o Options) (*net.TCPListener, error) {
	lc := o.listenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen %s: %w", addr, err)
	}
	return ln.(*net.TCPListener), nil
}

// ListenUDP opens a UDP socket on addr.
func ListenUDP(ctx context.Context, addr string, o Options) (*net.UDPConn, error) {
	lc := o.listenConfig()
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp listen %s: %w", addr, err)
	}
	return pc.(*net.UDPConn), nil
}
