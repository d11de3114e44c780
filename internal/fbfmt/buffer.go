// FlatBuffers buffer reader.
// All multi-byte values are little-endian; every read is bounds checked
// against the buffer before decoding.
package fbfmt

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// ErrBufferOverrun reports a read whose span falls outside the buffer.
var ErrBufferOverrun = errors.New("fbfmt: span exceeds buffer")

// Buffer is an immutable byte source. It never copies or mutates the
// underlying slice after construction.
type Buffer struct {
	data []byte
}

// NewBuffer wraps data. The caller must not modify data afterwards.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Len returns the buffer size in bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Contains reports whether [off, off+n) lies inside the buffer.
func (b *Buffer) Contains(off, n int) bool {
	return off >= 0 && n >= 0 && off <= len(b.data) && n <= len(b.data)-off
}

func (b *Buffer) span(off, n int) ([]byte, error) {
	if !b.Contains(off, n) {
		return nil, fmt.Errorf("%w: [0x%x..0x%x) in %d bytes", ErrBufferOverrun, off, off+n, len(b.data))
	}
	return b.data[off : off+n], nil
}

// Bytes returns a read-only view of n bytes at off.
func (b *Buffer) Bytes(off, n int) ([]byte, error) {
	return b.span(off, n)
}

// Uint8 reads a byte.
func (b *Buffer) Uint8(off int) (uint8, error) {
	s, err := b.span(off, 1)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetUint8(s), nil
}

// Int8 reads a signed byte.
func (b *Buffer) Int8(off int) (int8, error) {
	s, err := b.span(off, 1)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetInt8(s), nil
}

// Bool reads a byte as a boolean (non-zero is true).
func (b *Buffer) Bool(off int) (bool, error) {
	s, err := b.span(off, 1)
	if err != nil {
		return false, err
	}
	return flatbuffers.GetBool(s), nil
}

// Uint16 reads a little-endian uint16.
func (b *Buffer) Uint16(off int) (uint16, error) {
	s, err := b.span(off, 2)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetUint16(s), nil
}

// Int16 reads a little-endian int16.
func (b *Buffer) Int16(off int) (int16, error) {
	s, err := b.span(off, 2)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetInt16(s), nil
}

// Uint32 reads a little-endian uint32.
func (b *Buffer) Uint32(off int) (uint32, error) {
	s, err := b.span(off, 4)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetUint32(s), nil
}

// Int32 reads a little-endian int32.
func (b *Buffer) Int32(off int) (int32, error) {
	s, err := b.span(off, 4)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetInt32(s), nil
}

// Uint64 reads a little-endian uint64.
func (b *Buffer) Uint64(off int) (uint64, error) {
	s, err := b.span(off, 8)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetUint64(s), nil
}

// Int64 reads a little-endian int64.
func (b *Buffer) Int64(off int) (int64, error) {
	s, err := b.span(off, 8)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetInt64(s), nil
}

// Float32 reads a little-endian IEEE-754 float32.
func (b *Buffer) Float32(off int) (float32, error) {
	s, err := b.span(off, 4)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetFloat32(s), nil
}

// Float64 reads a little-endian IEEE-754 float64.
func (b *Buffer) Float64(off int) (float64, error) {
	s, err := b.span(off, 8)
	if err != nil {
		return 0, err
	}
	return flatbuffers.GetFloat64(s), nil
}

// Raw reads an unsigned little-endian value of the given width (1, 2, 4 or 8)
// zero-extended to 64 bits.
func (b *Buffer) Raw(off, width int) (uint64, error) {
	switch width {
	case 1:
		v, err := b.Uint8(off)
		return uint64(v), err
	case 2:
		v, err := b.Uint16(off)
		return uint64(v), err
	case 4:
		v, err := b.Uint32(off)
		return uint64(v), err
	case 8:
		return b.Uint64(off)
	}
	return 0, fmt.Errorf("fbfmt: unsupported width %d", width)
}

// Relative resolves a 32-bit relative pointer stored at off: off + int32(at off).
func (b *Buffer) Relative(off int) (int, error) {
	v, err := b.Int32(off)
	if err != nil {
		return 0, err
	}
	return off + int(v), nil
}

// Align rounds off up to the next multiple of n (n must be a power of two).
func Align(off, n int) int {
	return (off + n - 1) &^ (n - 1)
}

// IsAligned reports whether off is a multiple of n.
func IsAligned(off, n int) bool {
	return off&(n-1) == 0
}
