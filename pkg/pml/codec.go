// SPDX-License-Identifier: GPL-3.0-or-later

package pml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/route"
)

// Marshal writes msg as a self-closing element followed by a newline.
func Marshal(msg *Message) ([]byte, error) {
	if !validName(msg.Type) {
		return nil, NewMalformedMessageError(fmt.Sprintf("invalid message type %q", msg.Type))
	}

	var out bytes.Buffer
	out.WriteByte('<')
	out.WriteString(msg.Type)

	writeAttr := func(name, value string) {
		out.WriteByte(' ')
		out.WriteString(name)
		out.WriteString(`="`)
		_ = xml.EscapeText(&out, []byte(value))
		out.WriteByte('"')
	}

	if msg.VariableID != 0 {
		writeAttr(attrVariable, strconv.FormatUint(uint64(msg.VariableID), 10))
	}
	if !msg.Route.Arrived() {
		writeAttr(attrRoute, msg.Route.String())
	}
	if msg.Broadcast {
		writeAttr(attrBroadcast, "1")
	}
	if msg.Intelligent {
		writeAttr(attrIntelligent, "1")
	}

	for _, set := range []struct {
		attrs  map[string]string
		prefix string
	}{
		{msg.Namespaced, Namespace + ":"},
		{msg.Plain, ""},
	} {
		names := make([]string, 0, len(set.attrs))
		for name := range set.attrs {
			if !validName(name) || (set.prefix == "" && reserved(name)) {
				return nil, NewMalformedMessageError(fmt.Sprintf("invalid attribute name %q", name))
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			writeAttr(set.prefix+name, set.attrs[name])
		}
	}

	out.WriteString("/>\n")
	return out.Bytes(), nil
}

// Unmarshal parses a single element.
func Unmarshal(element []byte) (*Message, error) {
	decoder := xml.NewDecoder(bytes.NewReader(element))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil, NewMalformedMessageError("no element found")
		} else if err != nil {
			return nil, NewMalformedMessageError(err.Error())
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		return fromStartElement(start)
	}
}

func fromStartElement(start xml.StartElement) (*Message, error) {
	msg := NewMessage(start.Name.Local)

	for _, attr := range start.Attr {
		if attr.Name.Space == Namespace {
			msg.Namespaced[attr.Name.Local] = attr.Value
			continue
		}
		if attr.Name.Space != "" {
			return nil, NewMalformedMessageError(fmt.Sprintf("unknown namespace %q", attr.Name.Space))
		}

		switch attr.Name.Local {
		case attrVariable:
			id, err := strconv.ParseUint(attr.Value, 10, 32)
			if err != nil {
				return nil, NewMalformedMessageError(fmt.Sprintf("invalid variable id %q", attr.Value))
			}
			msg.VariableID = uint32(id)

		case attrRoute:
			r, err := route.Parse(attr.Value)
			if err != nil {
				return nil, err
			}
			msg.Route = r

		case attrBroadcast:
			msg.Broadcast = attr.Value == "1"

		case attrIntelligent:
			msg.Intelligent = attr.Value == "1"

		default:
			msg.Plain[attr.Name.Local] = attr.Value
		}
	}
	return msg, nil
}

func reserved(name string) bool {
	switch name {
	case attrVariable, attrRoute, attrBroadcast, attrIntelligent:
		return true
	default:
		return false
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && (r == '-' || ('0' <= r && r <= '9')):
		default:
			return false
		}
	}
	return !strings.HasPrefix(strings.ToLower(name), "xml")
}

// Decoder splits a PML byte stream into messages. Input may arrive in arbitrary chunks.
type Decoder struct {
	pending  []byte
	messages []*Message
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends data and parses every element completed by it.
// Malformed elements are logged and skipped.
func (decoder *Decoder) Feed(data []byte) {
	decoder.pending = append(decoder.pending, data...)

	for {
		element, rest, ok := nextElement(decoder.pending)
		if !ok {
			break
		}
		decoder.pending = rest

		if element == nil {
			continue
		}
		msg, err := Unmarshal(element)
		if err != nil {
			log.WithFields(log.Fields{
				"element": string(element),
				"error":   err,
			}).Warn("Dropping malformed PML element")
			continue
		}
		decoder.messages = append(decoder.messages, msg)
	}

	if len(decoder.pending) == 0 {
		decoder.pending = nil
	}
}

// Next returns the oldest parsed message.
func (decoder *Decoder) Next() (*Message, bool) {
	if len(decoder.messages) == 0 {
		return nil, false
	}
	msg := decoder.messages[0]
	decoder.messages[0] = nil
	decoder.messages = decoder.messages[1:]
	return msg, true
}

// Partial reports whether an element is half-read.
func (decoder *Decoder) Partial() bool {
	return len(bytes.TrimSpace(decoder.pending)) > 0
}

// nextElement finds the first complete top-level element in buf.
// Declarations, comments and stray text before it are skipped; for those the
// returned element is nil. ok is false when more input is needed.
func nextElement(buf []byte) (element, rest []byte, ok bool) {
	start := bytes.IndexByte(buf, '<')
	if start < 0 {
		return nil, nil, len(buf) > 0
	}
	buf = buf[start:]

	switch {
	case bytes.HasPrefix(buf, []byte("<?")):
		end := bytes.Index(buf, []byte("?>"))
		if end < 0 {
			return nil, buf, false
		}
		return nil, buf[end+2:], true

	case bytes.HasPrefix(buf, []byte("<!--")):
		end := bytes.Index(buf, []byte("-->"))
		if end < 0 {
			return nil, buf, false
		}
		return nil, buf[end+3:], true

	case bytes.HasPrefix(buf, []byte("<!")), bytes.HasPrefix(buf, []byte("</")):
		end := bytes.IndexByte(buf, '>')
		if end < 0 {
			return nil, buf, false
		}
		return nil, buf[end+1:], true
	}

	tagEnd := -1
	var quote byte
	for i := 1; i < len(buf); i++ {
		c := buf[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
		} else if c == '>' {
			tagEnd = i
			break
		}
	}
	if tagEnd < 0 {
		return nil, buf, false
	}

	if buf[tagEnd-1] == '/' {
		return buf[:tagEnd+1], buf[tagEnd+1:], true
	}

	name := buf[1:tagEnd]
	if i := bytes.IndexAny(name, " \t\r\n"); i >= 0 {
		name = name[:i]
	}
	closing := []byte("</" + string(name) + ">")
	end := bytes.Index(buf[tagEnd:], closing)
	if end < 0 {
		return nil, buf, false
	}
	end += tagEnd + len(closing)
	return buf[:end], buf[end:], true
}
