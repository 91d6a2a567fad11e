// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/fleetlink/internal/config"
	"github.com/momentics/fleetlink/internal/session"
	"github.com/momentics/fleetlink/internal/transfer"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Timeout          time.Duration // per-operation timeout of TCP sessions
	BufferSize       int           // staging buffer of each TCP session
	UDPBufferSize    int           // largest accepted datagram
	UDPRateLimit     float64       // datagrams per second, 0 = unlimited
	UDPBurst         int
	MaxSegmentLength uint64
	BigBufferSize    int
	MaxFileSize      uint64 // largest accepted upload
	Workers          int    // reactor workers, 0 = NumCPU
	ControllerSlots  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:          session.DefaultTimeout,
		BufferSize:       session.DefaultBufferSize,
		UDPBufferSize:    512,
		MaxSegmentLength: transfer.DefaultMaxSegmentLength,
		BigBufferSize:    transfer.DefaultBigBufferSize,
		MaxFileSize:      1 << 30,
		ControllerSlots:  1024,
	}
}

// ConfigFrom maps the loaded process configuration.
func ConfigFrom(c *config.Config) *Config {
	return &Config{
		Timeout:          c.TCP.Timeout,
		BufferSize:       c.TCP.BufferSize,
		UDPBufferSize:    c.UDP.BufferSize,
		UDPRateLimit:     c.UDP.RateLimit,
		UDPBurst:         c.UDP.Burst,
		MaxSegmentLength: c.Transfer.MaxSegmentLength,
		BigBufferSize:    c.Transfer.BigBufferSize,
		MaxFileSize:      c.Transfer.MaxFileSize,
		Workers:          c.Executor.Workers,
		ControllerSlots:  c.Store.ControllerSlots,
	}
}

func (c *Config) transferParams(total uint64) transfer.Params {
	return transfer.Params{
		TotalSize:        total,
		MaxSegmentLength: c.MaxSegmentLength,
		BigBufferSize:    c.BigBufferSize,
	}
}
