// SPDX-License-Identifier: GPL-3.0-or-later

// Package pml holds the attribute-map model of the Protocol Markup Language, the
// verbose text encoding of the bus, together with the small XML subset used to put
// it on the wire.
//
// A PML message is a single XML element. Its name is the message type; the reserved
// attributes var, route, broadcast and intelligent carry addressing; every other
// attribute is a message field. Fields in the pml namespace are written with the
// "pml:" prefix and live in Message.Namespaced, all others in Message.Plain.
package pml

import (
	"sort"

	"github.com/dtn7/bmfbus/pkg/route"
)

// Namespace is the prefix of namespace-qualified attributes.
const Namespace = "pml"

const (
	attrVariable    = "var"
	attrRoute       = "route"
	attrBroadcast   = "broadcast"
	attrIntelligent = "intelligent"
)

// Message is the attribute-map form of a message.
type Message struct {
	Type        string
	VariableID  uint32
	Route       route.Route
	Broadcast   bool
	Intelligent bool

	Namespaced map[string]string
	Plain      map[string]string
}

// NewMessage creates an empty Message of the given type.
func NewMessage(msgType string) *Message {
	return &Message{
		Type:       msgType,
		Namespaced: make(map[string]string),
		Plain:      make(map[string]string),
	}
}

func (msg *Message) attributes(namespaced bool) map[string]string {
	if namespaced {
		return msg.Namespaced
	}
	return msg.Plain
}

// Get looks up an attribute.
func (msg *Message) Get(name string, namespaced bool) (string, bool) {
	value, ok := msg.attributes(namespaced)[name]
	return value, ok
}

// Set stores an attribute.
func (msg *Message) Set(name string, namespaced bool, value string) {
	msg.attributes(namespaced)[name] = value
}

// Consume removes an attribute after it has been applied.
func (msg *Message) Consume(name string, namespaced bool) {
	delete(msg.attributes(namespaced), name)
}

// Leftover lists the attributes nobody consumed, namespaced ones with their prefix.
func (msg *Message) Leftover() []string {
	left := make([]string, 0, len(msg.Namespaced)+len(msg.Plain))
	for name := range msg.Namespaced {
		left = append(left, Namespace+":"+name)
	}
	for name := range msg.Plain {
		left = append(left, name)
	}
	sort.Strings(left)
	return left
}

// Clone returns a deep copy, so a consumer can strip attributes without affecting others.
func (msg *Message) Clone() *Message {
	clone := *msg
	clone.Route = msg.Route.Clone()
	clone.Namespaced = make(map[string]string, len(msg.Namespaced))
	for k, v := range msg.Namespaced {
		clone.Namespaced[k] = v
	}
	clone.Plain = make(map[string]string, len(msg.Plain))
	for k, v := range msg.Plain {
		clone.Plain[k] = v
	}
	return &clone
}
