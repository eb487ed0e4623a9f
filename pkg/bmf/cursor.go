// SPDX-License-Identifier: GPL-3.0-or-later

package bmf

// Cursor reads segments from a message.
// Every decoder either consumes exactly one segment and advances, or returns an
// error and leaves the cursor untouched.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor creates a Cursor at the start of msg.
func NewCursor(msg []byte) *Cursor {
	return &Cursor{data: msg}
}

// Clone returns an independent copy of this Cursor at the same position.
func (cur *Cursor) Clone() *Cursor {
	return &Cursor{data: cur.data, pos: cur.pos}
}

// Offset returns the read position.
func (cur *Cursor) Offset() int {
	return cur.pos
}

// Rest returns the unread part of the message.
func (cur *Cursor) Rest() []byte {
	return cur.data[cur.pos:]
}

// Message returns the whole underlying message.
func (cur *Cursor) Message() []byte {
	return cur.data
}

// IsFinished reports whether the cursor reached the end-of-message marker.
func (cur *Cursor) IsFinished() bool {
	return IsFinished(cur.Rest())
}

// IsEmpty reports whether the cursor is positioned on an empty segment or the end.
func (cur *Cursor) IsEmpty() bool {
	return IsEmpty(cur.Rest())
}

// HasAttribute reports whether a value segment follows.
func (cur *Cursor) HasAttribute() bool {
	return !cur.IsFinished() && !cur.IsEmpty()
}

// Skip advances past the current segment; it never moves past the end-of-message marker.
func (cur *Cursor) Skip() {
	cur.pos = len(cur.data) - len(Skip(cur.Rest()))
}

// Empty consumes an empty segment.
func (cur *Cursor) Empty() error {
	rest := cur.Rest()
	if IsFinished(rest) {
		return ErrMissingSegment
	}
	if rest[0] != Empty {
		return ErrMissingSegment
	}
	cur.pos++
	return nil
}

// Segment returns the raw bytes of the current run and advances past it.
func (cur *Cursor) Segment() ([]byte, error) {
	rest := cur.Rest()
	if IsFinished(rest) {
		return nil, ErrMissingSegment
	}
	n := Length(rest)
	if rest[n-1]&continuationBit != 0 {
		return nil, ErrTruncated
	}
	cur.pos += n
	return rest[:n], nil
}

// Unsigned decodes an unsigned segment.
func (cur *Cursor) Unsigned() (uint64, error) {
	v, n, err := readUnsigned(cur.Rest())
	if err != nil {
		return 0, err
	}
	cur.pos += n
	return v, nil
}

// Signed decodes a zig-zag encoded segment.
func (cur *Cursor) Signed() (int64, error) {
	v, err := cur.Unsigned()
	if err != nil {
		return 0, err
	}
	return unzigzag(v), nil
}

// Boolean decodes a boolean segment.
func (cur *Cursor) Boolean() (bool, error) {
	v, n, err := readUnsigned(cur.Rest())
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, NewNotBooleanError(v)
	}
	cur.pos += n
	return v == 1, nil
}

// Float decodes a float segment.
func (cur *Cursor) Float() (float64, error) {
	v, err := cur.Unsigned()
	if err != nil {
		return 0, err
	}
	return bitsFloat(v), nil
}

// Text decodes a string segment.
func (cur *Cursor) Text() (string, error) {
	s, n, err := readString(cur.Rest())
	if err != nil {
		return "", err
	}
	cur.pos += n
	return s, nil
}
