// File: internal/wire/codec.go
// Package wire packs and unpacks the fixed-layout frames of the TCP and UDP protocols.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// All multi-byte fields are little-endian and packed without padding.

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a frame is shorter than its fixed layout.
var ErrShortBuffer = errors.New("wire: short buffer")

// Message is a fixed-size frame.
type Message interface {
	// Size is the encoded length in bytes.
	Size() int
	Encode(e *Encoder)
	Decode(d *Decoder)
}

// Encoder appends fields to a byte slice.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder appending to buf[:0].
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf[:0]}
}

// Bytes returns the encoded frame.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) PutU8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) PutU16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }

func (e *Encoder) PutU32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *Encoder) PutU64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *Encoder) PutBytes(p []byte) { e.buf = append(e.buf, p...) }

// PutFixedString writes s NUL-padded to n bytes. s is truncated to n-1 bytes
// so the field always carries a terminator.
func (e *Encoder) PutFixedString(s string, n int) {
	if len(s) > n-1 {
		s = s[:n-1]
	}
	e.buf = append(e.buf, s...)
	for i := len(s); i < n; i++ {
		e.buf = append(e.buf, 0)
	}
}

// Decoder reads fields from a byte slice. The first short read sticks.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a decoder over buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Err returns the first decoding error.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf)-d.off < n {
		d.err = fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, len(d.buf)-d.off)
		return nil
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p
}

func (d *Decoder) U8() uint8 {
	if p := d.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *Decoder) U16() uint16 {
	if p := d.take(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (d *Decoder) U32() uint32 {
	if p := d.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *Decoder) U64() uint64 {
	if p := d.take(8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

// Bytes copies the next n bytes into dst.
func (d *Decoder) Bytes(dst []byte) {
	if p := d.take(len(dst)); p != nil {
		copy(dst, p)
	}
}

// FixedString reads an n-byte NUL-padded field and returns the text before the first NUL.
func (d *Decoder) FixedString(n int) string {
	p := d.take(n)
	if p == nil {
		return ""
	}
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p)
}

// Marshal encodes m into a new slice.
func Marshal(m Message) []byte {
	e := NewEncoder(make([]byte, 0, m.Size()))
	m.Encode(e)
	return e.Bytes()
}

// AppendMarshal encodes m after buf.
func AppendMarshal(buf []byte, m Message) []byte {
	e := &Encoder{buf: buf}
	m.Encode(e)
	return e.Bytes()
}

// Unmarshal decodes m from p. p must hold at least m.Size() bytes.
func Unmarshal(p []byte, m Message) error {
	d := NewDecoder(p)
	m.Decode(d)
	return d.Err()
}
