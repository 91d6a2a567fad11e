// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

import "strconv"

// ID is a server-assigned record identifier.
type ID uint32

// NoID is the reserved "no id" sentinel.
const NoID ID = 0

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// SessionState enumerates the lifecycle of a connection.
type SessionState int32

const (
	SessionUnconnected SessionState = iota
	SessionConnected
	SessionShuttingDown
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionUnconnected:
		return "unconnected"
	case SessionConnected:
		return "connected"
	case SessionShuttingDown:
		return "shutting-down"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Rotation is the 3-byte controller state exchanged over UDP.
type Rotation [3]byte
