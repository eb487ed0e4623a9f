// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"math"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/route"
)

const (
	flagBroadcast   uint64 = 1 << 0
	flagIntelligent uint64 = 1 << 1
)

// Header is the addressing prefix of every BMF message:
//
//	flags, onward route, variable ID, type code
//
// followed by the optional intelligence block, the payload fields and the
// end-of-message marker.
type Header struct {
	Broadcast   bool
	Intelligent bool
	Route       route.Route
	VariableID  uint32
	TypeCode    uint64
}

// HeaderFor builds the Header addressing target.
func HeaderFor(target route.Target, typeCode uint64, intelligent bool) Header {
	return Header{
		Broadcast:   target.Broadcast,
		Intelligent: intelligent,
		Route:       target.Route,
		VariableID:  target.VariableID,
		TypeCode:    typeCode,
	}
}

// Target returns the unresolved Target this Header describes.
func (header Header) Target() route.Target {
	return route.Target{
		Broadcast:  header.Broadcast,
		Route:      header.Route.Clone(),
		VariableID: header.VariableID,
	}
}

// Arrived reports whether the message is addressed to this node.
func (header Header) Arrived() bool {
	return header.Broadcast || header.Route.Arrived()
}

// Encode writes the Header. The route must have been validated.
func (header Header) Encode(buf *bmf.Buffer) {
	var flags uint64
	if header.Broadcast {
		flags |= flagBroadcast
	}
	if header.Intelligent {
		flags |= flagIntelligent
	}

	for !buf.TryPutUnsigned(flags) {
		buf.Grow()
	}
	header.Route.Encode(buf)
	for !buf.TryPutUnsigned(uint64(header.VariableID)) {
		buf.Grow()
	}
	for !buf.TryPutUnsigned(header.TypeCode) {
		buf.Grow()
	}
}

// ReadHeader decodes a Header. On error the cursor is left where it was.
func ReadHeader(cur *bmf.Cursor) (Header, error) {
	work := cur.Clone()

	flags, err := work.Unsigned()
	if err != nil {
		return Header{}, NewMalformedHeaderError("flags", err)
	}
	r, err := route.Decode(work)
	if err != nil {
		return Header{}, NewMalformedHeaderError("route", err)
	}
	variableID, err := work.Unsigned()
	if err != nil {
		return Header{}, NewMalformedHeaderError("variable", err)
	}
	if variableID > math.MaxUint32 {
		return Header{}, NewMalformedHeaderError("variable", bmf.ErrOverflow)
	}
	typeCode, err := work.Unsigned()
	if err != nil {
		return Header{}, NewMalformedHeaderError("type", err)
	}

	*cur = *work
	return Header{
		Broadcast:   flags&flagBroadcast != 0,
		Intelligent: flags&flagIntelligent != 0,
		Route:       r,
		VariableID:  uint32(variableID),
		TypeCode:    typeCode,
	}, nil
}

// Intelligence is the self-description carried by intelligent messages.
type Intelligence struct {
	TypeName   string
	FieldNames []string
}

func (intel *Intelligence) encode(buf *bmf.Buffer) error {
	if err := buf.PutString(intel.TypeName); err != nil {
		return err
	}
	buf.PutUnsigned(uint64(len(intel.FieldNames)))
	for _, name := range intel.FieldNames {
		if err := buf.PutString(name); err != nil {
			return err
		}
	}
	return nil
}

func readIntelligence(cur *bmf.Cursor) (*Intelligence, error) {
	work := cur.Clone()

	typeName, err := work.Text()
	if err != nil {
		return nil, err
	}
	count, err := work.Unsigned()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(work.Rest())) {
		return nil, bmf.ErrTruncated
	}

	intel := &Intelligence{TypeName: typeName, FieldNames: make([]string, 0, count)}
	for i := uint64(0); i < count; i++ {
		name, err := work.Text()
		if err != nil {
			return nil, err
		}
		intel.FieldNames = append(intel.FieldNames, name)
	}

	*cur = *work
	return intel, nil
}

// CreateOutput assembles a complete message addressed to target into buf: header,
// intelligence block if intel is set, the segments written by body and the
// end-of-message marker. On error buf holds a partial message and must be discarded.
func CreateOutput(buf *bmf.Buffer, target route.Target, typeCode uint64, intel *Intelligence, body func(buf *bmf.Buffer) error) error {
	if err := target.Route.Validate(); err != nil {
		return err
	}

	HeaderFor(target, typeCode, intel != nil).Encode(buf)
	if intel != nil {
		if err := intel.encode(buf); err != nil {
			return err
		}
	}
	if err := body(buf); err != nil {
		return err
	}
	buf.PutEnd()
	return nil
}

// Rewrite re-addresses an encoded message: header replaces the original header,
// the rest is copied verbatim. cur must be positioned right behind the original header.
func Rewrite(header Header, cur *bmf.Cursor) ([]byte, error) {
	if err := header.Route.Validate(); err != nil {
		return nil, err
	}

	rest := cur.Rest()
	buf := bmf.NewBuffer(len(rest) + bmf.DefaultSegmentSize)
	header.Encode(buf)
	for !buf.TryPutRaw(rest) {
		buf.Grow()
	}
	return buf.Bytes(), nil
}
