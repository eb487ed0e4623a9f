// SPDX-License-Identifier: GPL-3.0-or-later

package bmf

import (
	"strings"
)

// Buffer is a growable message buffer with a write cursor.
// The zero value is usable; its first Grow allocates DefaultSegmentSize bytes.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer allocates a Buffer with the given initial capacity.
func NewBuffer(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// NewMessageBuffer allocates a Buffer sized for a whole message.
func NewMessageBuffer() *Buffer {
	return NewBuffer(InitialMessageSize)
}

// Bytes returns the written part of the buffer. The slice is only valid until the next Grow.
func (buf *Buffer) Bytes() []byte {
	return buf.data[:buf.pos]
}

// Len returns the number of written bytes.
func (buf *Buffer) Len() int {
	return buf.pos
}

// Cap returns the allocated size.
func (buf *Buffer) Cap() int {
	return len(buf.data)
}

// Remaining returns the room left behind the write cursor.
func (buf *Buffer) Remaining() int {
	return len(buf.data) - buf.pos
}

// Reset moves the write cursor back to the start, keeping the allocation.
func (buf *Buffer) Reset() {
	buf.pos = 0
}

// Grow reallocates the buffer at twice its size and keeps the cursor offset.
func (buf *Buffer) Grow() {
	size := 2 * len(buf.data)
	if size < DefaultSegmentSize {
		size = DefaultSegmentSize
	}

	data := make([]byte, size)
	copy(data, buf.data[:buf.pos])
	buf.data = data
}

// reserve returns a slice of n bytes at the cursor, or nil if there is no room.
func (buf *Buffer) reserve(n int) []byte {
	if buf.Remaining() < n {
		return nil
	}
	return buf.data[buf.pos : buf.pos+n]
}

// TryPutUnsigned writes an unsigned segment.
func (buf *Buffer) TryPutUnsigned(v uint64) bool {
	dst := buf.reserve(unsignedLen(v))
	if dst == nil {
		return false
	}
	buf.pos += putUnsigned(dst, v)
	return true
}

// TryPutSigned writes a zig-zag encoded signed segment.
func (buf *Buffer) TryPutSigned(v int64) bool {
	return buf.TryPutUnsigned(zigzag(v))
}

// TryPutBoolean writes a boolean as the unsigned segment 0 or 1.
func (buf *Buffer) TryPutBoolean(v bool) bool {
	if v {
		return buf.TryPutUnsigned(1)
	}
	return buf.TryPutUnsigned(0)
}

// TryPutFloat writes the IEEE-754 bits of v as an unsigned segment.
func (buf *Buffer) TryPutFloat(v float64) bool {
	return buf.TryPutUnsigned(floatBits(v))
}

// TryPutString writes s and its terminating NUL as a single run.
// Strings containing NUL bytes cannot be represented; callers validate with
// ValidString first, TryPutString panics on them.
func (buf *Buffer) TryPutString(s string) bool {
	if strings.IndexByte(s, 0) >= 0 {
		panic(ErrEmbeddedNul)
	}

	dst := buf.reserve(stringLen(s))
	if dst == nil {
		return false
	}
	buf.pos += putString(dst, s)
	return true
}

// TryPutEmpty writes the empty segment.
func (buf *Buffer) TryPutEmpty() bool {
	dst := buf.reserve(1)
	if dst == nil {
		return false
	}
	dst[0] = Empty
	buf.pos++
	return true
}

// TryPutEnd writes the end-of-message marker.
func (buf *Buffer) TryPutEnd() bool {
	dst := buf.reserve(1)
	if dst == nil {
		return false
	}
	dst[0] = EndOfMessage
	buf.pos++
	return true
}

// TryPutRaw copies already encoded segments.
func (buf *Buffer) TryPutRaw(segments []byte) bool {
	dst := buf.reserve(len(segments))
	if dst == nil {
		return false
	}
	buf.pos += copy(dst, segments)
	return true
}

// PutUnsigned writes v, growing the buffer as needed.
func (buf *Buffer) PutUnsigned(v uint64) {
	for !buf.TryPutUnsigned(v) {
		buf.Grow()
	}
}

// PutString writes s, growing the buffer as needed.
func (buf *Buffer) PutString(s string) error {
	if err := ValidString(s); err != nil {
		return err
	}
	for !buf.TryPutString(s) {
		buf.Grow()
	}
	return nil
}

// PutEmpty writes the empty segment, growing the buffer as needed.
func (buf *Buffer) PutEmpty() {
	for !buf.TryPutEmpty() {
		buf.Grow()
	}
}

// PutEnd terminates the message, growing the buffer as needed.
func (buf *Buffer) PutEnd() {
	for !buf.TryPutEnd() {
		buf.Grow()
	}
}

// ValidString checks whether s can be encoded.
func ValidString(s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return ErrEmbeddedNul
	}
	return nil
}
