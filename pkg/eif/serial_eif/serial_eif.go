// SPDX-License-Identifier: GPL-3.0-or-later

// Package serial_eif connects the bus to tty devices.
//
// Devices are switched to raw 8N1 mode at the requested baud rate, 57600 unless
// Spec.Baud says otherwise.
package serial_eif

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
)

// DefaultBaud is used when a Spec does not name a baud rate.
const DefaultBaud = 57600

type Handler struct {
	encoding eif.Encoding
}

func NewHandler(encoding eif.Encoding) *Handler {
	return &Handler{encoding: encoding}
}

func (handler *Handler) Connection() eif.ConnectionType {
	return eif.Serial
}

func (handler *Handler) Encoding() eif.Encoding {
	return handler.encoding
}

func (handler *Handler) Open(spec eif.Spec) ([]*eif.Interface, error) {
	baud := spec.Baud
	if baud == 0 {
		baud = DefaultBaud
	}

	device, err := openDevice(spec.Address, baud)
	if err != nil {
		return nil, err
	}

	address := fmt.Sprintf("serial://%s@%d", spec.Address, baud)
	log.WithFields(log.Fields{
		"device":   spec.Address,
		"baud":     baud,
		"encoding": handler.encoding,
	}).Info("Opened serial device")

	channel := eif.NewStreamChannel(device, address)
	return []*eif.Interface{eif.NewInterface(eif.Serial, handler.encoding, channel, eif.NewParser(handler.encoding), spec.Options()...)}, nil
}

// Register adds a BMF and a PML serial handler and returns them in that order.
func Register(registry eif.HandlerRegistry) (*Handler, *Handler) {
	bmfHandler, pmlHandler := NewHandler(eif.BMF), NewHandler(eif.PML)
	registry.RegisterHandler(bmfHandler)
	registry.RegisterHandler(pmlHandler)
	return bmfHandler, pmlHandler
}
