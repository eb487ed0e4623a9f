// SPDX-FileCopyrightText: 2023 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package director keeps track of all external interfaces by port number and of the
// handlers creating them.
//
// A Director is not safe for concurrent use. All calls happen on the processing
// goroutine, see package processing.
package director

import (
	"math"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/metrics"
)

const initialCapacity = 8

type handlerKey struct {
	connection eif.ConnectionType
	encoding   eif.Encoding
}

// Director maps ports to Interfaces.
type Director struct {
	// interfaces is indexed by port; removed interfaces leave a nil slot
	interfaces   []*eif.Interface
	handlers     map[handlerKey]eif.Handler
	loggingPorts []uint32

	nextPort  uint32
	portLimit uint32
}

// NewDirector creates an empty Director.
func NewDirector() *Director {
	return &Director{
		interfaces:   make([]*eif.Interface, 0, initialCapacity),
		handlers:     make(map[handlerKey]eif.Handler),
		loggingPorts: make([]uint32, 0),
		portLimit:    math.MaxUint32,
	}
}

// RegisterHandler adds a Handler. A second handler for the same connection type and
// encoding, or one for NoEncoding, is a programming error and panics.
func (director *Director) RegisterHandler(handler eif.Handler) {
	key := handlerKey{connection: handler.Connection(), encoding: handler.Encoding()}

	if key.encoding == eif.NoEncoding {
		log.WithField("connection", key.connection).Panic("Handler registered without an encoding")
	}
	if _, ok := director.handlers[key]; ok {
		log.WithFields(log.Fields{
			"connection": key.connection,
			"encoding":   key.encoding,
		}).Panic("Handler registered twice")
	}

	director.handlers[key] = handler
	log.WithFields(log.Fields{
		"connection": key.connection,
		"encoding":   key.encoding,
	}).Debug("Registered handler")
}

// UnregisterHandler removes handler. It panics if a different handler is registered
// under the same key.
func (director *Director) UnregisterHandler(handler eif.Handler) {
	key := handlerKey{connection: handler.Connection(), encoding: handler.Encoding()}

	registered, ok := director.handlers[key]
	if !ok {
		return
	}
	if registered != handler {
		log.WithFields(log.Fields{
			"connection": key.connection,
			"encoding":   key.encoding,
		}).Panic("Unregistering a handler which was never registered")
	}
	delete(director.handlers, key)
}

func (director *Director) lookup(connection eif.ConnectionType, encoding eif.Encoding) (eif.Handler, bool) {
	if encoding != eif.NoEncoding {
		handler, ok := director.handlers[handlerKey{connection: connection, encoding: encoding}]
		return handler, ok
	}

	for _, candidate := range eif.Encodings {
		if handler, ok := director.handlers[handlerKey{connection: connection, encoding: candidate}]; ok {
			return handler, true
		}
	}
	return nil, false
}

// HasHandler reports whether a handler exists. NoEncoding matches any encoding.
func (director *Director) HasHandler(connection eif.ConnectionType, encoding eif.Encoding) bool {
	_, ok := director.lookup(connection, encoding)
	return ok
}

// GetHandler returns the handler for connection and encoding; NoEncoding selects the
// first encoding in eif.Encodings order which has one.
func (director *Director) GetHandler(connection eif.ConnectionType, encoding eif.Encoding) (eif.Handler, error) {
	handler, ok := director.lookup(connection, encoding)
	if !ok {
		return nil, NewNoHandlerError(connection, encoding)
	}
	return handler, nil
}

// Handlers lists all registered handlers.
func (director *Director) Handlers() []eif.Handler {
	handlers := make([]eif.Handler, 0, len(director.handlers))
	for _, connection := range eif.ConnectionTypes {
		for _, encoding := range eif.Encodings {
			if handler, ok := director.handlers[handlerKey{connection: connection, encoding: encoding}]; ok {
				handlers = append(handlers, handler)
			}
		}
	}
	return handlers
}

// Open builds Interfaces through the matching handler and adds them. Accepted
// connections of listening handlers are added as they arrive.
func (director *Director) Open(connection eif.ConnectionType, encoding eif.Encoding, spec eif.Spec) ([]uint32, error) {
	handler, err := director.GetHandler(connection, encoding)
	if err != nil {
		return nil, err
	}

	if spec.Adopt == nil {
		spec.Adopt = func(iface *eif.Interface) {
			director.AddInterface(iface)
		}
	}

	interfaces, err := handler.Open(spec)
	if err != nil {
		log.WithFields(log.Fields{
			"connection": connection,
			"encoding":   encoding,
			"address":    spec.Address,
			"error":      err,
		}).Error("Failed to open interface")
		return nil, err
	}

	ports := make([]uint32, 0, len(interfaces))
	for _, iface := range interfaces {
		ports = append(ports, director.AddInterface(iface))
	}
	return ports, nil
}

// getNextPort hands out port numbers. Ports are never reused; running out panics.
func (director *Director) getNextPort() uint32 {
	if director.nextPort >= director.portLimit {
		log.WithField("limit", director.portLimit).Panic("Port numbers exhausted")
	}
	port := director.nextPort
	director.nextPort++

	if int(port) >= cap(director.interfaces) {
		grown := make([]*eif.Interface, len(director.interfaces), 2*cap(director.interfaces)+1)
		copy(grown, director.interfaces)
		director.interfaces = grown
	}
	director.interfaces = director.interfaces[:port+1]
	return port
}

// AddInterface assigns the next port to iface and returns it.
func (director *Director) AddInterface(iface *eif.Interface) uint32 {
	port := director.getNextPort()
	iface.SetPort(port)
	director.interfaces[port] = iface

	if iface.IsLogging() {
		director.loggingPorts = append(director.loggingPorts, port)
	}

	metrics.Interfaces.Inc()
	metrics.InterfacesOpened.WithLabelValues(iface.Connection().String(), iface.Encoding().String()).Inc()

	log.WithFields(log.Fields{
		"port":      port,
		"interface": iface,
		"logging":   iface.IsLogging(),
	}).Info("Added interface")
	return port
}

// HasInterface reports whether port is live.
func (director *Director) HasInterface(port uint32) bool {
	return int(port) < len(director.interfaces) && director.interfaces[port] != nil
}

// GetInterface returns the Interface on port. Asking for a port which is not live is
// a programming error and panics; use HasInterface or LookupInterface first.
func (director *Director) GetInterface(port uint32) *eif.Interface {
	if !director.HasInterface(port) {
		log.WithField("port", port).Panic("No interface on port")
	}
	return director.interfaces[port]
}

// LookupInterface returns the Interface on port or a NoSuchPortError.
func (director *Director) LookupInterface(port uint32) (*eif.Interface, error) {
	if !director.HasInterface(port) {
		return nil, NewNoSuchPortError(port)
	}
	return director.interfaces[port], nil
}

// RemoveInterface closes the Interface on port and frees its slot.
func (director *Director) RemoveInterface(port uint32) error {
	if !director.HasInterface(port) {
		return NewNoSuchPortError(port)
	}

	iface := director.interfaces[port]
	director.interfaces[port] = nil

	logging := make([]uint32, 0, len(director.loggingPorts))
	for _, loggingPort := range director.loggingPorts {
		if loggingPort != port {
			logging = append(logging, loggingPort)
		}
	}
	director.loggingPorts = logging

	metrics.Interfaces.Dec()

	err := iface.Close()
	log.WithFields(log.Fields{
		"port":      port,
		"interface": iface,
		"error":     err,
	}).Info("Removed interface")
	return err
}

// MaxPort is the exclusive upper bound of all ports handed out so far.
func (director *Director) MaxPort() uint32 {
	return uint32(len(director.interfaces))
}

// Ports lists the live ports in ascending order.
func (director *Director) Ports() []uint32 {
	ports := make([]uint32, 0, len(director.interfaces))
	for port, iface := range director.interfaces {
		if iface != nil {
			ports = append(ports, uint32(port))
		}
	}
	return ports
}

// LoggingPorts returns the logging ports in the order they were added.
func (director *Director) LoggingPorts() []uint32 {
	return append([]uint32(nil), director.loggingPorts...)
}

// ForEach calls f for every live Interface in port order.
func (director *Director) ForEach(f func(iface *eif.Interface)) {
	for _, iface := range director.interfaces {
		if iface != nil {
			f(iface)
		}
	}
}

// MainLoop updates every live Interface once and removes those which ended.
// It returns whether any Interface is still live.
func (director *Director) MainLoop(dispatcher eif.Dispatcher) bool {
	// interfaces added during the sweep are first updated on the next one
	maxPort := director.MaxPort()
	live := false

	for port := uint32(0); port < maxPort; port++ {
		if !director.HasInterface(port) {
			continue
		}
		if director.interfaces[port].Update(dispatcher) {
			live = true
		} else if err := director.RemoveInterface(port); err != nil {
			log.WithFields(log.Fields{
				"port":  port,
				"error": err,
			}).Debug("Closing ended interface failed")
		}
	}
	return live
}

// Shutdown closes and removes every Interface.
func (director *Director) Shutdown() error {
	var result error
	for _, port := range director.Ports() {
		if err := director.RemoveInterface(port); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
