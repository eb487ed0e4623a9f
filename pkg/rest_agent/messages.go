// SPDX-License-Identifier: GPL-3.0-or-later

package rest_agent

import "github.com/dtn7/bmfbus/pkg/message"

// RestPort describes one open interface, returned by GET /ports.
type RestPort struct {
	Port       uint32 `json:"port"`
	Connection string `json:"connection"`
	Encoding   string `json:"encoding"`
	Address    string `json:"address"`
	Read       bool   `json:"read"`
	Write      bool   `json:"write"`
	Logging    bool   `json:"logging"`
	Pending    int    `json:"pending"`
}

// RestHandler is one registered handler, returned by GET /handlers.
type RestHandler struct {
	Connection string `json:"connection"`
	Encoding   string `json:"encoding"`
}

type RestTypesResponse struct {
	Error string                `json:"error"`
	Types []message.Description `json:"types"`
}

type RestPortsResponse struct {
	Error string     `json:"error"`
	Ports []RestPort `json:"ports"`
}

type RestHandlersResponse struct {
	Error    string        `json:"error"`
	Handlers []RestHandler `json:"handlers"`
}

// RestErrorRequest describes an Error message to send, POSTed to /error.
//
// Exactly one of Broadcast, Route and Port selects the target; Route is given in
// its text form, e.g. "3.sensor.1".
type RestErrorRequest struct {
	Broadcast bool    `json:"broadcast"`
	Route     string  `json:"route"`
	Port      *uint32 `json:"port"`
	Variable  uint32  `json:"variable"`

	Priority uint64 `json:"priority"`
	ErrorID  uint64 `json:"error_id"`
	Text     string `json:"text"`
}

type RestErrorResponse struct {
	Error string `json:"error"`
}

// RestOpenRequest opens interfaces through a registered handler, POSTed to /open.
type RestOpenRequest struct {
	Connection string `json:"connection"`
	Encoding   string `json:"encoding"`
	Address    string `json:"address"`
	Peer       string `json:"peer"`
	Read       bool   `json:"read"`
	Write      bool   `json:"write"`
	Listen     bool   `json:"listen"`
	Logging    bool   `json:"logging"`
}

type RestOpenResponse struct {
	Error string   `json:"error"`
	Ports []uint32 `json:"ports"`
}

// RestRecord is one journaled message, returned by GET /journal/{port}.
type RestRecord struct {
	ID       string `json:"id"`
	Encoding string `json:"encoding"`
	Type     string `json:"type"`
	Received string `json:"received"`
	Checksum uint16 `json:"checksum"`
	Payload  []byte `json:"payload,omitempty"`
}

type RestJournalResponse struct {
	Error   string       `json:"error"`
	Records []RestRecord `json:"records"`
}
