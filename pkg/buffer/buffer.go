// Package buffer provides the append-only byte accumulator used by the
// multipart decoder.
//
// A ByteBuffer keeps a logical length that is usually smaller than its
// backing capacity. Appends grow the backing array geometrically, and
// consumed data is released with DiscardPrefix, which shifts the unconsumed
// tail to offset 0 in place instead of allocating a new array.
package buffer

import (
	"bytes"
	"fmt"
)

const (
	// DefaultInitialSize is the capacity allocated by New when no size is given
	DefaultInitialSize = 4096

	growthFactor = 2
)

// ByteBuffer is a growable byte sequence with a logical length
type ByteBuffer struct {
	data []byte // backing storage, len(data) is the capacity
	used int    // logical length
}

// New creates a buffer with the given initial capacity
func New(initialSize int) *ByteBuffer {
	if initialSize <= 0 {
		initialSize = DefaultInitialSize
	}
	return &ByteBuffer{data: make([]byte, initialSize)}
}

// Len returns the number of valid bytes
func (b *ByteBuffer) Len() int {
	return b.used
}

// Cap returns the size of the backing storage
func (b *ByteBuffer) Cap() int {
	return len(b.data)
}

// Append copies chunk into the tail of the buffer, growing it if needed
func (b *ByteBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.ensure(b.used + len(chunk))
	copy(b.data[b.used:], chunk)
	b.used += len(chunk)
}

// ensure grows the backing storage so it can hold size bytes
func (b *ByteBuffer) ensure(size int) {
	if size <= len(b.data) {
		return
	}
	next := len(b.data)
	if next == 0 {
		next = DefaultInitialSize
	}
	for next < size {
		next *= growthFactor
	}
	grown := make([]byte, next)
	copy(grown, b.data[:b.used])
	b.data = grown
}

// IndexByte returns the index of the first occurrence of value at or after
// from, or -1 if it is not present in [from, Len())
func (b *ByteBuffer) IndexByte(value byte, from int) int {
	if from < 0 || from > b.used {
		panic(fmt.Sprintf("buffer: search offset %d out of range [0, %d]", from, b.used))
	}
	i := bytes.IndexByte(b.data[from:b.used], value)
	if i < 0 {
		return -1
	}
	return from + i
}

// Slice returns a view of [start, end). The view shares storage with the
// buffer and is only valid until the next Append or DiscardPrefix.
func (b *ByteBuffer) Slice(start, end int) []byte {
	if start < 0 || end < start || end > b.used {
		panic(fmt.Sprintf("buffer: slice [%d:%d] out of range [0, %d]", start, end, b.used))
	}
	return b.data[start:end:end]
}

// Bytes returns a view of all valid bytes
func (b *ByteBuffer) Bytes() []byte {
	return b.data[:b.used:b.used]
}

// DiscardPrefix drops the first n bytes, moving [n, Len()) to the front
func (b *ByteBuffer) DiscardPrefix(n int) {
	if n < 0 || n > b.used {
		panic(fmt.Sprintf("buffer: cannot discard %d bytes of %d", n, b.used))
	}
	if n == 0 {
		return
	}
	copy(b.data, b.data[n:b.used])
	b.used -= n
}

// Reset empties the buffer while keeping its storage
func (b *ByteBuffer) Reset() {
	b.used = 0
}
