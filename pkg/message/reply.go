// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"strconv"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/pml"
)

// MsgIDFieldName is the name of the field correlating replies with queries.
const MsgIDFieldName = "msgID"

// ReplyBase is embedded by every reply payload. The message ID is always the
// first field of a reply.
type ReplyBase struct {
	MsgID uint64
}

// MsgIDField creates the leading message ID field of a reply type.
func MsgIDField[P any](base func(*P) *ReplyBase) Field[P] {
	return Unsigned(MsgIDFieldName, func(p *P) *uint64 { return &base(p).MsgID }).
		WithDescription("ID of the query this message answers")
}

// ExtractMsgID reads the message ID of an encoded BMF reply without decoding the
// rest of it.
func ExtractMsgID(msg []byte) (uint64, error) {
	cur := bmf.NewCursor(msg)
	header, err := ReadHeader(cur)
	if err != nil {
		return 0, err
	}
	if header.Intelligent {
		if _, err := readIntelligence(cur); err != nil {
			return 0, NewMalformedHeaderError("intelligence", err)
		}
	}

	id, err := cur.Unsigned()
	if err != nil {
		return 0, NewFieldError("reply", MsgIDFieldName, err)
	}
	return id, nil
}

// ExtractPMLMsgID reads the message ID attribute of a PML reply.
func ExtractPMLMsgID(msg *pml.Message) (uint64, error) {
	text, ok := msg.Get(MsgIDFieldName, false)
	if !ok {
		return 0, NewFieldError(msg.Type, MsgIDFieldName, nil)
	}
	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, NewFieldError(msg.Type, MsgIDFieldName, err)
	}
	return id, nil
}

// InsertMsgID sets the message ID attribute of a PML message.
func InsertMsgID(msg *pml.Message, id uint64) {
	msg.Set(MsgIDFieldName, false, strconv.FormatUint(id, 10))
}
