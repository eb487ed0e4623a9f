// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"github.com/dtn7/bmfbus/pkg/director"
	"github.com/dtn7/bmfbus/pkg/eif"
)

// DefaultNumberType is reported when no number type is configured.
const DefaultNumberType = "double"

// Node is the state queries are answered from.
type Node interface {
	LoggingPorts() []uint32
	JournalCapacity() uint64
	PortEncoding(port uint32) (eif.Encoding, bool)
	NumberType() string
}

// BusNode answers queries from a Director.
type BusNode struct {
	Director *director.Director
	Capacity uint64
	Numbers  string
}

func (node *BusNode) LoggingPorts() []uint32 {
	return node.Director.LoggingPorts()
}

func (node *BusNode) JournalCapacity() uint64 {
	return node.Capacity
}

func (node *BusNode) PortEncoding(port uint32) (eif.Encoding, bool) {
	iface, err := node.Director.LookupInterface(port)
	if err != nil {
		return eif.NoEncoding, false
	}
	return iface.Encoding(), true
}

func (node *BusNode) NumberType() string {
	if node.Numbers == "" {
		return DefaultNumberType
	}
	return node.Numbers
}
