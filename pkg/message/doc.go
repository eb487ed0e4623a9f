// SPDX-License-Identifier: GPL-3.0-or-later

// Package message is the dual-path engine behind every message type of the bus.
//
// A message type is described once, as an ordered list of Fields over a payload
// struct. Its Manager derives everything else from that list: decoding BMF and PML
// into the payload, encoding the payload in either form, translating between the
// two and sending to a port, a remote route or every interface at once.
package message
