// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package quic_eif connects the bus over QUIC.
//
// Every connection carries exactly one bidirectional stream, opened by the
// dialer. The listener adopts a connection as a new Interface once its stream
// arrives, which happens with the dialer's first message.
package quic_eif

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
)

const dialTimeout = 10 * time.Second

// streamConn is the single stream of a connection. Closing it closes the connection.
type streamConn struct {
	quic.Stream
	connection quic.Connection
}

func (conn *streamConn) Read(p []byte) (int, error) {
	n, err := conn.Stream.Read(p)
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorCode == applicationShutdown {
		err = io.EOF
	}
	return n, err
}

func (conn *streamConn) Close() error {
	var result error
	if err := conn.Stream.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := conn.connection.CloseWithError(applicationShutdown, "interface closed"); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

type Handler struct {
	encoding eif.Encoding

	mutex     sync.Mutex
	listeners []*quic.Listener
}

func NewHandler(encoding eif.Encoding) *Handler {
	return &Handler{encoding: encoding}
}

func (handler *Handler) Connection() eif.ConnectionType {
	return eif.QUIC
}

func (handler *Handler) Encoding() eif.Encoding {
	return handler.encoding
}

func (handler *Handler) Open(spec eif.Spec) ([]*eif.Interface, error) {
	if spec.Listen {
		return handler.listen(spec)
	}
	return handler.dial(spec)
}

func (handler *Handler) newInterface(connection quic.Connection, stream quic.Stream, spec eif.Spec) *eif.Interface {
	address := fmt.Sprintf("quic://%v", connection.RemoteAddr())
	channel := eif.NewStreamChannel(&streamConn{Stream: stream, connection: connection}, address)
	return eif.NewInterface(eif.QUIC, handler.encoding, channel, eif.NewParser(handler.encoding), spec.Options()...)
}

func (handler *Handler) dial(spec eif.Spec) ([]*eif.Interface, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	connection, err := quic.DialAddr(ctx, spec.Address, generateDialerTLSConfig(), generateQUICConfig())
	if err != nil {
		return nil, err
	}

	stream, err := connection.OpenStreamSync(ctx)
	if err != nil {
		_ = connection.CloseWithError(localError, "opening stream failed")
		return nil, err
	}

	log.WithFields(log.Fields{
		"address":  spec.Address,
		"encoding": handler.encoding,
	}).Debug("Dialer established QUIC connection")

	return []*eif.Interface{handler.newInterface(connection, stream, spec)}, nil
}

func (handler *Handler) listen(spec eif.Spec) ([]*eif.Interface, error) {
	if spec.Adopt == nil {
		return nil, fmt.Errorf("listening on %v without a way to adopt connections", spec.Address)
	}

	tlsConfig, err := generateListenerTLSConfig()
	if err != nil {
		return nil, err
	}

	listener, err := quic.ListenAddr(spec.Address, tlsConfig, generateQUICConfig())
	if err != nil {
		log.WithError(err).Error("Error creating QUIC listener")
		return nil, err
	}

	handler.mutex.Lock()
	handler.listeners = append(handler.listeners, listener)
	handler.mutex.Unlock()

	channel := eif.NewListenerChannel(listener, listener.Addr().String())
	go handler.accept(listener, channel, spec)

	log.WithFields(log.Fields{
		"address":  listener.Addr(),
		"encoding": handler.encoding,
	}).Info("Listening for QUIC connections")

	return []*eif.Interface{eif.NewListenerInterface(eif.QUIC, handler.encoding, channel)}, nil
}

func (handler *Handler) accept(listener *quic.Listener, channel *eif.ListenerChannel, spec eif.Spec) {
	for {
		connection, err := listener.Accept(context.Background())
		if err != nil {
			if errors.Is(err, quic.ErrServerClosed) {
				log.WithField("address", listener.Addr()).Debug("QUIC listener closed")
			} else {
				log.WithFields(log.Fields{
					"address": listener.Addr(),
					"error":   err,
				}).Error("Unknown error accepting QUIC connection")
			}
			channel.MarkClosed()
			return
		}

		log.WithFields(log.Fields{
			"address": listener.Addr(),
			"peer":    connection.RemoteAddr(),
		}).Info("QUIC listener accepted new connection")

		go handler.acceptStream(connection, spec)
	}
}

func (handler *Handler) acceptStream(connection quic.Connection, spec eif.Spec) {
	stream, err := connection.AcceptStream(connection.Context())
	if err != nil {
		log.WithFields(log.Fields{
			"peer":  connection.RemoteAddr(),
			"error": err,
		}).Debug("QUIC connection ended before opening its stream")
		_ = connection.CloseWithError(localError, "no stream")
		return
	}
	spec.Adopt(handler.newInterface(connection, stream, spec))
}

// Close stops all listeners opened by this Handler.
func (handler *Handler) Close() error {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()

	var result error
	for _, listener := range handler.listeners {
		if err := listener.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	handler.listeners = nil
	return result
}

// Register adds a BMF and a PML QUIC handler and returns them in that order.
func Register(registry eif.HandlerRegistry) (*Handler, *Handler) {
	bmfHandler, pmlHandler := NewHandler(eif.BMF), NewHandler(eif.PML)
	registry.RegisterHandler(bmfHandler)
	registry.RegisterHandler(pmlHandler)
	return bmfHandler, pmlHandler
}
