// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"strconv"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/route"
)

// Kind is the value type of a Field.
type Kind uint8

const (
	KindUnsigned Kind = iota
	KindSigned
	KindFloat
	KindBoolean
	KindString
	KindRoute
)

func (kind Kind) String() string {
	switch kind {
	case KindUnsigned:
		return "unsigned"
	case KindSigned:
		return "signed"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindRoute:
		return "route"
	default:
		return "unknown kind"
	}
}

// Field describes one payload value of a message type. The order of a manager's
// fields is the wire order in BMF.
type Field[P any] struct {
	Name        string
	Kind        Kind
	Namespaced  bool
	Optional    bool
	Unit        string
	Description string

	encode func(payload *P, buf *bmf.Buffer) error
	decode func(payload *P, cur *bmf.Cursor) error
	format func(payload *P) string
	parse  func(payload *P, text string) error
}

// InNamespace marks the field as a pml-namespaced attribute.
func (field Field[P]) InNamespace() Field[P] {
	field.Namespaced = true
	return field
}

// AsOptional lets the field be absent; its value then stays zero.
func (field Field[P]) AsOptional() Field[P] {
	field.Optional = true
	return field
}

func (field Field[P]) WithUnit(unit string) Field[P] {
	field.Unit = unit
	return field
}

func (field Field[P]) WithDescription(description string) Field[P] {
	field.Description = description
	return field
}

// Unsigned creates a field stored in the uint64 returned by value.
func Unsigned[P any](name string, value func(*P) *uint64) Field[P] {
	return Field[P]{
		Name: name,
		Kind: KindUnsigned,
		encode: func(payload *P, buf *bmf.Buffer) error {
			for !buf.TryPutUnsigned(*value(payload)) {
				buf.Grow()
			}
			return nil
		},
		decode: func(payload *P, cur *bmf.Cursor) error {
			v, err := cur.Unsigned()
			if err == nil {
				*value(payload) = v
			}
			return err
		},
		format: func(payload *P) string {
			return strconv.FormatUint(*value(payload), 10)
		},
		parse: func(payload *P, text string) error {
			v, err := strconv.ParseUint(text, 10, 64)
			if err == nil {
				*value(payload) = v
			}
			return err
		},
	}
}

// Signed creates a field stored in the int64 returned by value.
func Signed[P any](name string, value func(*P) *int64) Field[P] {
	return Field[P]{
		Name: name,
		Kind: KindSigned,
		encode: func(payload *P, buf *bmf.Buffer) error {
			for !buf.TryPutSigned(*value(payload)) {
				buf.Grow()
			}
			return nil
		},
		decode: func(payload *P, cur *bmf.Cursor) error {
			v, err := cur.Signed()
			if err == nil {
				*value(payload) = v
			}
			return err
		},
		format: func(payload *P) string {
			return strconv.FormatInt(*value(payload), 10)
		},
		parse: func(payload *P, text string) error {
			v, err := strconv.ParseInt(text, 10, 64)
			if err == nil {
				*value(payload) = v
			}
			return err
		},
	}
}

// Float creates a field stored in the float64 returned by value.
func Float[P any](name string, value func(*P) *float64) Field[P] {
	return Field[P]{
		Name: name,
		Kind: KindFloat,
		encode: func(payload *P, buf *bmf.Buffer) error {
			for !buf.TryPutFloat(*value(payload)) {
				buf.Grow()
			}
			return nil
		},
		decode: func(payload *P, cur *bmf.Cursor) error {
			v, err := cur.Float()
			if err == nil {
				*value(payload) = v
			}
			return err
		},
		format: func(payload *P) string {
			return strconv.FormatFloat(*value(payload), 'g', -1, 64)
		},
		parse: func(payload *P, text string) error {
			v, err := strconv.ParseFloat(text, 64)
			if err == nil {
				*value(payload) = v
			}
			return err
		},
	}
}

// Boolean creates a field stored in the bool returned by value.
func Boolean[P any](name string, value func(*P) *bool) Field[P] {
	return Field[P]{
		Name: name,
		Kind: KindBoolean,
		encode: func(payload *P, buf *bmf.Buffer) error {
			for !buf.TryPutBoolean(*value(payload)) {
				buf.Grow()
			}
			return nil
		},
		decode: func(payload *P, cur *bmf.Cursor) error {
			v, err := cur.Boolean()
			if err == nil {
				*value(payload) = v
			}
			return err
		},
		format: func(payload *P) string {
			return strconv.FormatBool(*value(payload))
		},
		parse: func(payload *P, text string) error {
			v, err := strconv.ParseBool(text)
			if err == nil {
				*value(payload) = v
			}
			return err
		},
	}
}

// String creates a field stored in the string returned by value. Strings with NUL
// bytes cannot be sent.
func String[P any](name string, value func(*P) *string) Field[P] {
	return Field[P]{
		Name: name,
		Kind: KindString,
		encode: func(payload *P, buf *bmf.Buffer) error {
			return buf.PutString(*value(payload))
		},
		decode: func(payload *P, cur *bmf.Cursor) error {
			v, err := cur.Text()
			if err == nil {
				*value(payload) = v
			}
			return err
		},
		format: func(payload *P) string {
			return *value(payload)
		},
		parse: func(payload *P, text string) error {
			if err := bmf.ValidString(text); err != nil {
				return err
			}
			*value(payload) = text
			return nil
		},
	}
}

// RouteField creates a field stored in the route.Route returned by value.
func RouteField[P any](name string, value func(*P) *route.Route) Field[P] {
	return Field[P]{
		Name: name,
		Kind: KindRoute,
		encode: func(payload *P, buf *bmf.Buffer) error {
			r := *value(payload)
			if err := r.Validate(); err != nil {
				return err
			}
			r.Encode(buf)
			return nil
		},
		decode: func(payload *P, cur *bmf.Cursor) error {
			r, err := route.Decode(cur)
			if err == nil {
				*value(payload) = r
			}
			return err
		},
		format: func(payload *P) string {
			return value(payload).String()
		},
		parse: func(payload *P, text string) error {
			r, err := route.Parse(text)
			if err == nil {
				*value(payload) = r
			}
			return err
		},
	}
}
