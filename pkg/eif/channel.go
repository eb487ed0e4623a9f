// SPDX-License-Identifier: GPL-3.0-or-later

package eif

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Inbox buffers data received by a background goroutine until the next Poll.
// The zero value is ready for use.
type Inbox struct {
	mutex sync.Mutex
	data  []byte
	err   error
}

// Push appends received data.
func (inbox *Inbox) Push(data []byte) {
	inbox.mutex.Lock()
	inbox.data = append(inbox.data, data...)
	inbox.mutex.Unlock()
}

// Fail records the error which ended the receiving side. Only the first one is kept.
func (inbox *Inbox) Fail(err error) {
	inbox.mutex.Lock()
	if inbox.err == nil {
		inbox.err = err
	}
	inbox.mutex.Unlock()
}

// Poll implements Channel.Poll. Buffered data is returned before the recorded error.
func (inbox *Inbox) Poll(p []byte) (int, error) {
	inbox.mutex.Lock()
	defer inbox.mutex.Unlock()

	if len(inbox.data) > 0 {
		n := copy(p, inbox.data)
		inbox.data = inbox.data[n:]
		if len(inbox.data) == 0 {
			inbox.data = nil
		}
		return n, nil
	}
	return 0, inbox.err
}

// StreamChannel turns a blocking stream into a Channel. A goroutine reads the
// stream into an Inbox; writes go straight to the stream.
type StreamChannel struct {
	Inbox

	stream  io.ReadWriteCloser
	address string

	writeMutex sync.Mutex
	closed     atomic.Bool
}

// NewStreamChannel starts reading from stream.
func NewStreamChannel(stream io.ReadWriteCloser, address string) *StreamChannel {
	channel := &StreamChannel{stream: stream, address: address}
	go channel.receive()
	return channel
}

func (channel *StreamChannel) receive() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := channel.stream.Read(buf)
		if n > 0 {
			channel.Push(buf[:n])
		}
		if err != nil {
			if channel.closed.Load() || errors.Is(err, net.ErrClosed) {
				err = io.EOF
			}
			if !errors.Is(err, io.EOF) {
				log.WithFields(log.Fields{
					"address": channel.address,
					"error":   err,
				}).Debug("Stream channel stopped reading")
			}
			channel.Fail(err)
			return
		}
	}
}

func (channel *StreamChannel) Write(p []byte) (int, error) {
	channel.writeMutex.Lock()
	defer channel.writeMutex.Unlock()

	if channel.closed.Load() {
		return 0, NewClosedError(channel.address)
	}
	return channel.stream.Write(p)
}

func (channel *StreamChannel) Close() error {
	if channel.closed.Swap(true) {
		return nil
	}
	return channel.stream.Close()
}

func (channel *StreamChannel) Address() string {
	return channel.address
}

// ListenerChannel represents a listening socket as a Channel. It never carries
// data; closing it stops accepting new connections.
type ListenerChannel struct {
	listener io.Closer
	address  string
	closed   atomic.Bool
}

func NewListenerChannel(listener io.Closer, address string) *ListenerChannel {
	return &ListenerChannel{listener: listener, address: address}
}

func (channel *ListenerChannel) Poll(_ []byte) (int, error) {
	if channel.closed.Load() {
		return 0, io.EOF
	}
	return 0, nil
}

func (channel *ListenerChannel) Write(_ []byte) (int, error) {
	return 0, NewNotWritableError(channel.address)
}

func (channel *ListenerChannel) Close() error {
	if channel.closed.Swap(true) {
		return nil
	}
	return channel.listener.Close()
}

// MarkClosed ends the channel after its listener failed on its own.
func (channel *ListenerChannel) MarkClosed() {
	channel.closed.Store(true)
}

func (channel *ListenerChannel) Address() string {
	return channel.address
}

// NewListenerInterface wraps a listener. Listener Interfaces are never writable;
// polling them only notices when the listener has ended.
func NewListenerInterface(connection ConnectionType, encoding Encoding, channel *ListenerChannel) *Interface {
	return NewInterface(connection, encoding, channel, NewParser(encoding), WithRead(true), WithWrite(false))
}
