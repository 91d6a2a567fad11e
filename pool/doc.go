// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory pooling for the transfer layer. BytePool hands out the bounded
// staging buffers that decouple socket I/O from file I/O.
package pool
