// SPDX-FileCopyrightText: 2025 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package unix_agent

type MessageType uint8

const (
	MsgTypeGeneralResponse MessageType = 1
	MsgTypeSendError       MessageType = 2
	MsgTypeQuery           MessageType = 3
	MsgTypeQueryResponse   MessageType = 4
	MsgTypeFetchReply      MessageType = 5
	MsgTypeReplyResponse   MessageType = 6
	MsgTypeListPorts       MessageType = 7
	MsgTypePortsResponse   MessageType = 8
	MsgTypeSubscribe       MessageType = 9
	MsgTypeUnsubscribe     MessageType = 10
	MsgTypeFetchErrors     MessageType = 11
	MsgTypeErrorsResponse  MessageType = 12
)

// QueryKind names one of the built-in queries.
type QueryKind string

const (
	QueryLog        QueryKind = "log"
	QueryNumLog     QueryKind = "numLog"
	QueryMaxLog     QueryKind = "maxLog"
	QueryLanguage   QueryKind = "language"
	QueryNumberType QueryKind = "numberType"
)

var QueryKinds = []QueryKind{QueryLog, QueryNumLog, QueryMaxLog, QueryLanguage, QueryNumberType}

type Message struct {
	Type MessageType
}

type GeneralResponse struct {
	Message
	Success bool
	Error   string
}

// Target selects where a message goes: everywhere, along Route, or out of Port.
type Target struct {
	Broadcast bool
	Route     string
	HasPort   bool
	Port      uint32
	Variable  uint32
}

type SendErrorMessage struct {
	Message
	Target   Target
	Priority uint64
	ErrorID  uint64
	Text     string
}

type QueryMessage struct {
	Message
	Target      Target
	Kind        QueryKind
	ReturnRoute string
	Index       uint64
}

type QueryResponse struct {
	GeneralResponse
	MsgID uint64
}

type FetchReplyMessage struct {
	Message
	Kind  QueryKind
	MsgID uint64
}

// ReplyResponse carries a claimed answer; Ready is false while none arrived.
type ReplyResponse struct {
	GeneralResponse
	Ready  bool
	Number uint64
	Text   string
}

type PortInfo struct {
	Port       uint32
	Connection string
	Encoding   string
	Address    string
	Logging    bool
}

type PortsResponse struct {
	GeneralResponse
	Ports []PortInfo
}

// SubscribeMessage (un)registers an inbox receiving the Error messages delivered to this node.
type SubscribeMessage struct {
	Message
	Subscriber string
	Capacity   int
}

// FetchErrorsMessage reads an inbox. OnlyNew skips messages fetched before; Remove
// deletes the returned messages.
type FetchErrorsMessage struct {
	Message
	Subscriber string
	OnlyNew    bool
	Remove     bool
}

type ReceivedError struct {
	Source   string
	Priority uint64
	ErrorID  uint64
	Text     string
	Received int64
}

type ErrorsResponse struct {
	GeneralResponse
	Errors []ReceivedError
}
