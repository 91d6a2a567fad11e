// File: transport/buffers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"syscall"
)

// BufferSizes reports the kernel receive and send buffer sizes of conn.
func BufferSizes(conn syscall.Conn) (recv, send int, err error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var serr error
	err = rc.Control(func(fd uintptr) {
		if recv, serr = socketBuffer(fd, optRecvBuffer); serr != nil {
			return
		}
		send, serr = socketBuffer(fd, optSendBuffer)
	})
	if err == nil {
		err = serr
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read socket buffers: %w", err)
	}
	return recv, send, nil
}
