// SPDX-License-Identifier: GPL-3.0-or-later

package eif

import (
	"fmt"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/pml"
)

// Inbound is one parsed message; exactly one of its fields is set.
type Inbound struct {
	BMF []byte
	PML *pml.Message
}

// Parser turns the raw byte stream of an Interface into messages.
type Parser interface {
	Encoding() Encoding

	// Feed appends received bytes.
	Feed(data []byte)

	// Next returns the oldest complete message.
	Next() (Inbound, bool)

	// Partial reports whether a message is half-read.
	Partial() bool
}

// NewParser returns the Parser strategy for the given encoding.
func NewParser(encoding Encoding) Parser {
	switch encoding {
	case BMF:
		return &bmfParser{scanner: bmf.NewScanner(0)}
	case PML:
		return &pmlParser{decoder: pml.NewDecoder()}
	default:
		panic(fmt.Sprintf("no parser for encoding %v", encoding))
	}
}

type bmfParser struct {
	scanner *bmf.Scanner
}

func (parser *bmfParser) Encoding() Encoding {
	return BMF
}

func (parser *bmfParser) Feed(data []byte) {
	parser.scanner.Feed(data)
}

func (parser *bmfParser) Next() (Inbound, bool) {
	msg, ok := parser.scanner.Next()
	return Inbound{BMF: msg}, ok
}

func (parser *bmfParser) Partial() bool {
	return parser.scanner.Partial()
}

type pmlParser struct {
	decoder *pml.Decoder
}

func (parser *pmlParser) Encoding() Encoding {
	return PML
}

func (parser *pmlParser) Feed(data []byte) {
	parser.decoder.Feed(data)
}

func (parser *pmlParser) Next() (Inbound, bool) {
	msg, ok := parser.decoder.Next()
	return Inbound{PML: msg}, ok
}

func (parser *pmlParser) Partial() bool {
	return parser.decoder.Partial()
}
