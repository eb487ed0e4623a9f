// SPDX-License-Identifier: GPL-3.0-or-later

package message

import "github.com/dtn7/bmfbus/pkg/route"

// Variable is a local receiver of one message type.
type Variable[P any] interface {
	ID() uint32
	Name() string

	// Receive is called with a completely decoded payload; source is the arrival port.
	Receive(source route.Target, payload P)
}

// FuncVariable is a Variable calling a function on every message.
type FuncVariable[P any] struct {
	id      uint32
	name    string
	receive func(source route.Target, payload P)
}

func NewVariable[P any](id uint32, name string, receive func(source route.Target, payload P)) *FuncVariable[P] {
	return &FuncVariable[P]{id: id, name: name, receive: receive}
}

func (variable *FuncVariable[P]) ID() uint32 {
	return variable.id
}

func (variable *FuncVariable[P]) Name() string {
	return variable.name
}

func (variable *FuncVariable[P]) Receive(source route.Target, payload P) {
	variable.receive(source, payload)
}
