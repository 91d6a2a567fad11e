// File: server/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package server implements the request handlers of the fleet coordination
// server: the TCP control channel (host and controller registration, map and
// file transfer, world lifecycle, echo) and the UDP state channel (echo,
// controller rotation fetch and update).
package server
