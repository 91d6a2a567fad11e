// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"
	"sync/atomic"
)

// BytePool recycles fixed-capacity staging buffers, such as the big buffer of
// a file transfer. Requests larger than the pool size are allocated directly.
type BytePool struct {
	size  int
	pool  sync.Pool
	inUse atomic.Int64
}

// NewBytePool returns a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = 4 << 20
	}
	b := &BytePool{size: size}
	b.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return b
}

// Size returns the capacity of pooled buffers.
func (b *BytePool) Size() int { return b.size }

// InUse returns the number of buffers handed out and not yet returned.
func (b *BytePool) InUse() int64 { return b.inUse.Load() }

// Get returns a buffer of length n.
func (b *BytePool) Get(n int) []byte {
	b.inUse.Add(1)
	if n > b.size {
		return make([]byte, n)
	}
	return (*b.pool.Get().(*[]byte))[:n]
}

// Put returns buf to the pool. Buffers not obtained from Get are dropped.
func (b *BytePool) Put(buf []byte) {
	b.inUse.Add(-1)
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.pool.Put(&buf)
}
