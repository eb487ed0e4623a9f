// SPDX-License-Identifier: GPL-3.0-or-later

// Package route provides the addressing value types of the bus.
//
// A Route is the hierarchical path to a remote component. Routes are consumed hop
// by hop: the head segment of an unresolved route names the local port a message
// leaves through, the rest travels inside the message to the next node.
package route

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dtn7/bmfbus/pkg/bmf"
)

// Separator joins the segments of a Route in its text form.
const Separator = "."

// Segment is one hop of a Route, either a number or a string token.
type Segment struct {
	Number  uint64
	Token   string
	IsToken bool
}

// Num creates a numeric Segment.
func Num(n uint64) Segment {
	return Segment{Number: n}
}

// Tok creates a token Segment.
func Tok(token string) Segment {
	return Segment{Token: token, IsToken: true}
}

func (seg Segment) String() string {
	if seg.IsToken {
		return seg.Token
	}
	return strconv.FormatUint(seg.Number, 10)
}

// Route is an ordered sequence of hops.
type Route []Segment

// Parse reads the text form of a Route, e.g. "3.1.arm". The empty string is the empty Route.
// Purely numeric segments become numbers, everything else a token.
func Parse(s string) (Route, error) {
	if s == "" {
		return Route{}, nil
	}

	parts := strings.Split(s, Separator)
	r := make(Route, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, NewMalformedRouteError(s)
		}
		if err := bmf.ValidString(part); err != nil {
			return nil, NewMalformedRouteError(s)
		}
		if n, err := strconv.ParseUint(part, 10, 64); err == nil {
			r = append(r, Num(n))
		} else {
			r = append(r, Tok(part))
		}
	}
	return r, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) Route {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Route) String() string {
	parts := make([]string, len(r))
	for i, seg := range r {
		parts[i] = seg.String()
	}
	return strings.Join(parts, Separator)
}

// Arrived reports whether no hops are left.
func (r Route) Arrived() bool {
	return len(r) == 0
}

// Head splits off the first hop.
func (r Route) Head() (Segment, Route, bool) {
	if r.Arrived() {
		return Segment{}, r, false
	}
	return r[0], r[1:], true
}

// Prepend returns a new Route starting with the given port.
func (r Route) Prepend(port uint32) Route {
	out := make(Route, 0, len(r)+1)
	out = append(out, Num(uint64(port)))
	return append(out, r...)
}

// Equal compares two Routes segment by segment.
func (r Route) Equal(other Route) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no storage with r.
func (r Route) Clone() Route {
	return append(Route{}, r...)
}

// Encode appends the BMF form of this Route: the hop count, then a token flag and
// the value for each hop.
func (r Route) Encode(buf *bmf.Buffer) {
	for !buf.TryPutUnsigned(uint64(len(r))) {
		buf.Grow()
	}
	for _, seg := range r {
		for !buf.TryPutBoolean(seg.IsToken) {
			buf.Grow()
		}
		if seg.IsToken {
			for !buf.TryPutString(seg.Token) {
				buf.Grow()
			}
		} else {
			for !buf.TryPutUnsigned(seg.Number) {
				buf.Grow()
			}
		}
	}
}

// Decode reads a Route from the cursor. On error the cursor is left where it was.
func Decode(cur *bmf.Cursor) (Route, error) {
	work := cur.Clone()

	count, err := work.Unsigned()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(work.Rest())) {
		return nil, fmt.Errorf("route: %d hops announced but only %d bytes left", count, len(work.Rest()))
	}

	r := make(Route, 0, count)
	for i := uint64(0); i < count; i++ {
		isToken, err := work.Boolean()
		if err != nil {
			return nil, err
		}
		if isToken {
			token, err := work.Text()
			if err != nil {
				return nil, err
			}
			r = append(r, Tok(token))
		} else {
			n, err := work.Unsigned()
			if err != nil {
				return nil, err
			}
			r = append(r, Num(n))
		}
	}

	*cur = *work
	return r, nil
}

// Validate checks that every token can be encoded.
func (r Route) Validate() error {
	for _, seg := range r {
		if !seg.IsToken {
			continue
		}
		if seg.Token == "" || strings.Contains(seg.Token, Separator) {
			return NewMalformedRouteError(r.String())
		}
		if _, err := strconv.ParseUint(seg.Token, 10, 64); err == nil {
			return NewMalformedRouteError(r.String())
		}
		if err := bmf.ValidString(seg.Token); err != nil {
			return NewMalformedRouteError(r.String())
		}
	}
	return nil
}
