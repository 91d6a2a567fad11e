//go:build !unix

// File: transport/sockopt_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "errors"

var errUnsupported = errors.New("socket option not supported on this platform")

func applySocketOptions(_ uintptr, o Options) error {
	if o.ReusePort {
		return errUnsupported
	}
	return nil
}

func socketBuffer(uintptr, int) (int, error) { return 0, errUnsupported }

const (
	optRecvBuffer = 0
	optSendBuffer = 1
)
