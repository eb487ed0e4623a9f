// SPDX-License-Identifier: GPL-3.0-or-later

package eif

import (
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/pml"
)

const (
	// DefaultMaxPerPoll caps the messages dispatched per update unless ReceiveAll is set.
	DefaultMaxPerPoll = 16

	readChunkSize     = 4096
	maxReadsPerUpdate = 8
)

// Options configures an Interface.
type Options struct {
	Read  bool
	Write bool

	// InstantTransmit sends outbound messages immediately; otherwise they are
	// buffered until the next Update.
	InstantTransmit bool

	// ReceiveAll dispatches every parsed message per Update, ignoring MaxPerPoll.
	ReceiveAll bool
	MaxPerPoll int

	// Logging interfaces receive a copy of every inbound message.
	Logging bool
}

var defaultOptions = Options{
	Read:            true,
	Write:           true,
	InstantTransmit: true,
	ReceiveAll:      false,
	MaxPerPoll:      DefaultMaxPerPoll,
}

type Option func(*Options)

func WithRead(read bool) Option {
	return func(o *Options) { o.Read = read }
}

func WithWrite(write bool) Option {
	return func(o *Options) { o.Write = write }
}

func WithInstantTransmit(instant bool) Option {
	return func(o *Options) { o.InstantTransmit = instant }
}

func WithReceiveAll(all bool) Option {
	return func(o *Options) { o.ReceiveAll = all }
}

// WithMaxPerPoll sets the dispatch cap; values below one are ignored.
func WithMaxPerPoll(limit int) Option {
	return func(o *Options) {
		if limit > 0 {
			o.MaxPerPoll = limit
		}
	}
}

func WithLogging(logging bool) Option {
	return func(o *Options) { o.Logging = logging }
}

// Interface is one open channel of the bus. It is owned by the director, which
// assigns its port; the Interface owns its Channel and Parser.
type Interface struct {
	connection ConnectionType
	encoding   Encoding

	port    uint32
	hasPort bool

	channel Channel
	parser  Parser
	opts    Options

	outbox  [][]byte
	readBuf []byte
	ended   bool
}

// NewInterface wraps channel. It panics if parser is nil or does not speak encoding,
// since an Interface without a matching parser can never be valid.
func NewInterface(connection ConnectionType, encoding Encoding, channel Channel, parser Parser, opts ...Option) *Interface {
	if parser == nil {
		log.WithFields(log.Fields{
			"connection": connection,
			"encoding":   encoding,
		}).Panic("Interface created without a parser")
	}
	if parser.Encoding() != encoding {
		log.WithFields(log.Fields{
			"encoding": encoding,
			"parser":   parser.Encoding(),
		}).Panic("Interface parser does not match its encoding")
	}

	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	return &Interface{
		connection: connection,
		encoding:   encoding,
		channel:    channel,
		parser:     parser,
		opts:       options,
		readBuf:    make([]byte, readChunkSize),
	}
}

func (iface *Interface) String() string {
	if iface.hasPort {
		return fmt.Sprintf("%v/%v[%d](%s)", iface.connection, iface.encoding, iface.port, iface.channel.Address())
	}
	return fmt.Sprintf("%v/%v(%s)", iface.connection, iface.encoding, iface.channel.Address())
}

func (iface *Interface) Connection() ConnectionType {
	return iface.connection
}

func (iface *Interface) Encoding() Encoding {
	return iface.encoding
}

// IsPMLNotBMF reports whether this Interface speaks PML.
func (iface *Interface) IsPMLNotBMF() bool {
	return iface.encoding == PML
}

func (iface *Interface) Address() string {
	return iface.channel.Address()
}

// Port returns the assigned port; it panics if the Interface was never added to a director.
func (iface *Interface) Port() uint32 {
	if !iface.hasPort {
		log.WithField("interface", iface).Panic("Interface has no port assigned")
	}
	return iface.port
}

// SetPort is called by the director once. Reassignment panics.
func (iface *Interface) SetPort(port uint32) {
	if iface.hasPort {
		log.WithFields(log.Fields{
			"interface": iface,
			"port":      port,
		}).Panic("Interface port reassigned")
	}
	iface.port = port
	iface.hasPort = true
}

func (iface *Interface) Options() Options {
	return iface.opts
}

func (iface *Interface) IsLogging() bool {
	return iface.opts.Logging
}

func (iface *Interface) Readable() bool {
	return iface.opts.Read
}

func (iface *Interface) Writable() bool {
	return iface.opts.Write
}

// Ended reports whether the channel has ended; the next Update will return false.
func (iface *Interface) Ended() bool {
	return iface.ended
}

// Pending returns the number of batched outbound messages.
func (iface *Interface) Pending() int {
	return len(iface.outbox)
}

// Update polls the channel, dispatches parsed messages and flushes batched output.
// It returns false once the channel has ended.
func (iface *Interface) Update(dispatcher Dispatcher) bool {
	if iface.ended {
		return false
	}

	if iface.opts.Read {
		iface.poll()

		dispatched := 0
		for iface.opts.ReceiveAll || iface.ended || dispatched < iface.opts.MaxPerPoll {
			inbound, ok := iface.parser.Next()
			if !ok {
				break
			}
			iface.dispatch(dispatcher, inbound)
			dispatched++
		}
	}

	if err := iface.Flush(); err != nil {
		log.WithFields(log.Fields{
			"interface": iface,
			"error":     err,
		}).Error("Flushing batched messages failed")
	}

	if iface.ended && iface.parser.Partial() {
		log.WithField("interface", iface).Debug("Channel ended inside a message, discarding the rest")
	}
	return !iface.ended
}

func (iface *Interface) poll() {
	for i := 0; i < maxReadsPerUpdate; i++ {
		n, err := iface.channel.Poll(iface.readBuf)
		if n > 0 {
			iface.parser.Feed(iface.readBuf[:n])
		}

		if errors.Is(err, io.EOF) {
			log.WithField("interface", iface).Debug("Channel reached its end")
			iface.ended = true
			return
		} else if err != nil {
			log.WithFields(log.Fields{
				"interface": iface,
				"error":     err,
			}).Error("Reading from channel failed")
			iface.ended = true
			return
		}

		if n == 0 {
			return
		}
	}
}

func (iface *Interface) dispatch(dispatcher Dispatcher, inbound Inbound) {
	if inbound.PML != nil {
		dispatcher.DispatchPML(iface.port, inbound.PML)
	} else {
		dispatcher.DispatchBMF(iface.port, inbound.BMF)
	}
}

// SendBMF transmits a complete BMF message.
func (iface *Interface) SendBMF(msg []byte) error {
	if iface.encoding != BMF {
		return NewEncodingMismatchError(iface.encoding, BMF)
	}
	return iface.transmit(msg)
}

// SendPML transmits msg in its text form.
func (iface *Interface) SendPML(msg *pml.Message) error {
	if iface.encoding != PML {
		return NewEncodingMismatchError(iface.encoding, PML)
	}
	data, err := pml.Marshal(msg)
	if err != nil {
		return err
	}
	return iface.transmit(data)
}

func (iface *Interface) transmit(data []byte) error {
	if !iface.opts.Write {
		return NewNotWritableError(iface.Address())
	}
	if iface.ended {
		return NewClosedError(iface.Address())
	}

	if !iface.opts.InstantTransmit {
		iface.outbox = append(iface.outbox, append([]byte(nil), data...))
		return nil
	}
	return iface.write(data)
}

func (iface *Interface) write(data []byte) error {
	if _, err := iface.channel.Write(data); err != nil {
		iface.ended = true
		return err
	}
	return nil
}

// Flush writes all batched messages.
func (iface *Interface) Flush() error {
	for len(iface.outbox) > 0 {
		if iface.ended {
			iface.outbox = nil
			return NewClosedError(iface.Address())
		}
		data := iface.outbox[0]
		iface.outbox[0] = nil
		iface.outbox = iface.outbox[1:]
		if err := iface.write(data); err != nil {
			iface.outbox = nil
			return err
		}
	}
	iface.outbox = nil
	return nil
}

// Close flushes pending output and closes the channel.
func (iface *Interface) Close() error {
	flushErr := iface.Flush()
	iface.ended = true
	if err := iface.channel.Close(); err != nil {
		return err
	}
	return flushErr
}
