// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package eif defines External Interfaces, the bus's connections to the outside world.
//
// A Channel is the raw byte transport of one connection: a file, FIFO, serial device,
// TCP or QUIC stream, or NATS subject pair. It must never block; Poll returns
// whatever data is available right now.
//
// An Interface wraps one Channel together with a Parser for its Encoding. It is
// polled by the director's main loop, hands complete inbound messages to a
// Dispatcher and transmits outbound messages either instantly or batched until its
// next update.
//
// Interfaces are built by Handlers, factories registered per connection type and
// encoding.
package eif

import (
	"io"

	"github.com/dtn7/bmfbus/pkg/pml"
)

// Channel is the byte transport of an Interface.
type Channel interface {
	io.Closer

	// Poll reads available data into p without blocking. It returns io.EOF once the
	// channel has ended for good.
	Poll(p []byte) (int, error)

	// Write transmits p completely or returns an error.
	Write(p []byte) (int, error)

	// Address describes the remote end for logging and inspection.
	Address() string
}

// Dispatcher receives complete inbound messages from Interfaces.
type Dispatcher interface {
	DispatchBMF(port uint32, msg []byte)
	DispatchPML(port uint32, msg *pml.Message)
}

// Handler creates Interfaces for one connection type and encoding.
type Handler interface {
	Connection() ConnectionType
	Encoding() Encoding

	// Open creates the Interfaces described by spec. Listening handlers may return
	// none or only a listener Interface and hand accepted connections to spec.Adopt.
	Open(spec Spec) ([]*Interface, error)
}

// Spec carries the parameters of Handler.Open.
type Spec struct {
	// Address is the primary location: a path, device, host:port or subject.
	Address string
	// Peer is the secondary location where a connection needs two, e.g. the
	// outgoing FIFO of a pair or the outgoing NATS subject.
	Peer string

	Read  bool
	Write bool

	Listen bool

	Logging    bool
	Instant    bool
	ReceiveAll bool
	MaxPerPoll int

	// Baud rate of serial devices; 0 selects the default.
	Baud int

	// Adopt registers Interfaces created after Open returned, e.g. accepted connections.
	Adopt func(*Interface)
}

// Options derives the Interface options from this Spec.
func (spec Spec) Options() []Option {
	opts := []Option{
		WithRead(spec.Read),
		WithWrite(spec.Write),
		WithLogging(spec.Logging),
		WithInstantTransmit(spec.Instant),
		WithReceiveAll(spec.ReceiveAll),
	}
	if spec.MaxPerPoll > 0 {
		opts = append(opts, WithMaxPerPoll(spec.MaxPerPoll))
	}
	return opts
}

// HandlerRegistry accepts Handlers; connection packages register themselves with it.
type HandlerRegistry interface {
	RegisterHandler(handler Handler)
}
