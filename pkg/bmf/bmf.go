// SPDX-License-Identifier: GPL-3.0-or-later

// Package bmf implements the Binary Message Format, the compact wire encoding of the bus.
//
// A BMF message is a sequence of self-terminating segments followed by a single
// end-of-message byte. Each segment is a run of bytes carrying seven payload bits
// per byte, least significant group first. Bit 7 of every byte is the continuation
// bit; a run ends on the first byte where it is clear. There is no length prefix.
//
//	segment   = *( 1xxxxxxx ) 0xxxxxxx
//	empty     = 0x01
//	message   = *( segment / empty ) 0x00
//
// Unsigned values are stored offset by two, so a one-byte run can never be mistaken
// for the end-of-message (0x00) or empty (0x01) markers. Strings pack their bytes
// plus a mandatory NUL into the seven-bit groups of a single run.
//
// Writes go through Buffer, whose TryPut methods never write partially: when the
// remaining room is too small they return false and the caller grows the buffer and
// retries:
//
//	for !buf.TryPutUnsigned(v) {
//		buf.Grow()
//	}
package bmf

const (
	// InitialMessageSize is the default capacity of a freshly allocated message buffer.
	InitialMessageSize = 2000

	// DefaultSegmentSize is the default capacity of a buffer holding a single segment.
	DefaultSegmentSize = 100

	// EmptySegmentSize is the size of the canonical empty encoding: the empty
	// segment followed by the end-of-message marker.
	EmptySegmentSize = 2
)

const (
	continuationBit byte = 0x80
	payloadMask     byte = 0x7f

	// EndOfMessage terminates every message. It is never continued.
	EndOfMessage byte = 0x00

	// Empty marks an absent optional value.
	Empty byte = 0x01

	valueOffset = 2

	// maxUnsignedRun is the longest run an unsigned value (65 bits after the offset) needs.
	maxUnsignedRun = 10
)

// IsEmpty returns true if seg is nil or starts with the empty segment. The empty
// segment is a complete one-byte run, so the byte after it starts the next segment
// and is not inspected; IsCanonicalEmpty checks a whole two-byte buffer.
func IsEmpty(seg []byte) bool {
	return len(seg) == 0 || seg[0] == Empty
}

// IsFinished returns true if seg is nil or positioned on the end-of-message marker.
func IsFinished(seg []byte) bool {
	return len(seg) == 0 || seg[0] == EndOfMessage
}

// Length returns the number of bytes of the run starting at seg.
// The end-of-message marker and nil count as one byte.
// A run truncated by the end of seg counts up to the end of seg.
func Length(seg []byte) int {
	if IsFinished(seg) {
		return 1
	}

	for i, b := range seg {
		if b&continuationBit == 0 {
			return i + 1
		}
	}
	return len(seg)
}

// Skip returns the remainder of seg after its first run.
// Skip never advances past the end-of-message marker.
func Skip(seg []byte) []byte {
	if IsFinished(seg) {
		return seg
	}
	return seg[Length(seg):]
}

// IsCanonicalEmpty reports whether buf is exactly the two-byte canonical empty encoding.
func IsCanonicalEmpty(buf []byte) bool {
	return len(buf) == EmptySegmentSize && buf[0] == Empty && buf[1] == EndOfMessage
}
