// SPDX-FileCopyrightText: 2019, 2021, 2024 Markus Sommer
// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package socket_eif connects the bus over TCP.
//
// Dialled connections become one Interface each. A listening Spec yields a
// listener Interface; every accepted connection is handed to Spec.Adopt as a new
// Interface with the listener's options.
package socket_eif

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
)

const dialTimeout = 10 * time.Second

type Handler struct {
	encoding eif.Encoding

	mutex     sync.Mutex
	listeners []net.Listener
}

func NewHandler(encoding eif.Encoding) *Handler {
	return &Handler{encoding: encoding}
}

func (handler *Handler) Connection() eif.ConnectionType {
	return eif.Socket
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

func (handler *Handler) dial(spec eif.Spec) ([]*eif.Interface, error) {
	conn, err := net.DialTimeout("tcp", spec.Address, dialTimeout)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"address":  spec.Address,
		"encoding": handler.encoding,
	}).Debug("Dialled socket interface")

	return []*eif.Interface{handler.newInterface(conn, spec)}, nil
}

func (handler *Handler) newInterface(conn net.Conn, spec eif.Spec) *eif.Interface {
	address := fmt.Sprintf("tcp://%v", conn.RemoteAddr())
	channel := eif.NewStreamChannel(conn, address)
	return eif.NewInterface(eif.Socket, handler.encoding, channel, eif.NewParser(handler.encoding), spec.Options()...)
}

func (handler *Handler) listen(spec eif.Spec) ([]*eif.Interface, error) {
	if spec.Adopt == nil {
		return nil, fmt.Errorf("listening on %v without a way to adopt connections", spec.Address)
	}

	listener, err := net.Listen("tcp", spec.Address)
	if err != nil {
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
	}).Info("Listening for socket connections")

	return []*eif.Interface{eif.NewListenerInterface(eif.Socket, handler.encoding, channel)}, nil
}

func (handler *Handler) accept(listener net.Listener, channel *eif.ListenerChannel, spec eif.Spec) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.WithField("address", listener.Addr()).Debug("Socket listener closed")
			} else {
				log.WithFields(log.Fields{
					"address": listener.Addr(),
					"error":   err,
				}).Error("Accepting socket connection failed")
			}
			channel.MarkClosed()
			return
		}

		log.WithFields(log.Fields{
			"address": listener.Addr(),
			"peer":    conn.RemoteAddr(),
		}).Info("Socket listener accepted new connection")

		spec.Adopt(handler.newInterface(conn, spec))
	}
}

// Close stops all listeners opened by this Handler.
func (handler *Handler) Close() error {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()

	var result error
	for _, listener := range handler.listeners {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}
	handler.listeners = nil
	return result
}

// Register adds a BMF and a PML socket handler and returns them in that order.
func Register(registry eif.HandlerRegistry) (*Handler, *Handler) {
	bmfHandler, pmlHandler := NewHandler(eif.BMF), NewHandler(eif.PML)
	registry.RegisterHandler(bmfHandler)
	registry.RegisterHandler(pmlHandler)
	return bmfHandler, pmlHandler
}
