// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020, 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package eif

import (
	"errors"
	"strings"
)

// ConnectionType is one of the supported kinds of channels an Interface can wrap.
type ConnectionType uint

const (
	// File covers regular files, FIFOs and character devices opened as files.
	File ConnectionType = 0

	// Socket identifies TCP connections, implemented in eif/socket_eif.
	Socket ConnectionType = 10

	// Serial identifies tty devices configured via termios, implemented in eif/serial_eif.
	Serial ConnectionType = 20

	// QUIC identifies QUIC streams, implemented in eif/quic_eif.
	QUIC ConnectionType = 30

	// NATS identifies a pair of NATS subjects, implemented in eif/nats_eif.
	NATS ConnectionType = 40

	// Dummy identifies in-memory pipes, only used for testing.
	Dummy ConnectionType = 99

	unknownConnectionTypeString string = "unknown connection type"
)

// ConnectionTypes lists every known ConnectionType.
var ConnectionTypes = []ConnectionType{File, Socket, Serial, QUIC, NATS, Dummy}

// CheckValid checks if its value is known.
func (connection ConnectionType) CheckValid() (err error) {
	if connection.String() == unknownConnectionTypeString {
		err = errors.New(unknownConnectionTypeString)
	}
	return
}

func (connection ConnectionType) String() string {
	switch connection {
	case File:
		return "File"

	case Socket:
		return "Socket"

	case Serial:
		return "Serial"

	case QUIC:
		return "QUIC"

	case NATS:
		return "NATS"

	case Dummy:
		return "Dummy"

	default:
		return unknownConnectionTypeString
	}
}

// ConnectionTypeFromString parses the case-insensitive name of a ConnectionType.
func ConnectionTypeFromString(name string) (ConnectionType, error) {
	for _, connection := range ConnectionTypes {
		if strings.EqualFold(connection.String(), name) {
			return connection, nil
		}
	}
	return 0, NewUnknownConnectionTypeError(name)
}

// Encoding is the wire format spoken on an Interface.
type Encoding uint

const (
	// NoEncoding acts as a wildcard when looking up handlers. It is never a valid
	// encoding of an Interface or a registered handler.
	NoEncoding Encoding = 0

	// BMF is the binary message format.
	BMF Encoding = 1

	// PML is the text markup encoding.
	PML Encoding = 2
)

// Encodings lists the concrete encodings in lookup order.
var Encodings = []Encoding{BMF, PML}

func (encoding Encoding) String() string {
	switch encoding {
	case NoEncoding:
		return "None"
	case BMF:
		return "BMF"
	case PML:
		return "PML"
	default:
		return "unknown encoding"
	}
}

// EncodingFromString parses the case-insensitive name of an Encoding.
// The empty string and "any" yield NoEncoding.
func EncodingFromString(name string) (Encoding, error) {
	switch strings.ToLower(name) {
	case "", "any", "none":
		return NoEncoding, nil
	case "bmf":
		return BMF, nil
	case "pml":
		return PML, nil
	default:
		return NoEncoding, NewUnknownEncodingError(name)
	}
}
