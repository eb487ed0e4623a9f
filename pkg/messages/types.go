// SPDX-License-Identifier: GPL-3.0-or-later

// Package messages defines the built-in message types of the bus: error reporting
// and the queries a node answers about itself, together with their replies.
package messages

import (
	"github.com/dtn7/bmfbus/pkg/message"
	"github.com/dtn7/bmfbus/pkg/route"
)

// Type codes of the built-in messages. The variables receiving them use the same
// numbers as IDs.
const (
	ErrorCode           uint64 = 1
	SetErrorRouteCode   uint64 = 2
	QueryLogCode        uint64 = 10
	QueryNumLogCode     uint64 = 11
	QueryMaxLogCode     uint64 = 12
	QueryLanguageCode   uint64 = 13
	QueryNumberTypeCode uint64 = 14
	ReplyLogCode        uint64 = 20
	ReplyNumLogCode     uint64 = 21
	ReplyLanguageCode   uint64 = 22
	ReplyNumberTypeCode uint64 = 23
)

// VariableID returns the ID of the built-in variable receiving messages of code.
func VariableID(code uint64) uint32 {
	return uint32(code)
}

type Error struct {
	Priority uint64
	ErrorID  uint64
	Text     string
}

type SetErrorRoute struct {
	MinPriority uint64
	ErrorRoute  route.Route
}

// Query is the payload of all queries without arguments.
type Query struct {
	ReturnRoute route.Route
	MsgID       uint64
}

type QueryLog struct {
	Query
	Index uint64
}

type ReplyLog struct {
	message.ReplyBase
	LogRoute route.Route
}

type ReplyNum struct {
	message.ReplyBase
	Count uint64
}

type ReplyText struct {
	message.ReplyBase
	Text string
}

func newErrorManager() *message.Manager[Error] {
	return message.NewManager("Error", ErrorCode,
		message.Unsigned("priority", func(p *Error) *uint64 { return &p.Priority }),
		message.Unsigned("errorID", func(p *Error) *uint64 { return &p.ErrorID }),
		message.String("text", func(p *Error) *string { return &p.Text }),
	)
}

func newSetErrorRouteManager() *message.Manager[SetErrorRoute] {
	return message.NewManager("SetErrorRoute", SetErrorRouteCode,
		message.Unsigned("minPriority", func(p *SetErrorRoute) *uint64 { return &p.MinPriority }),
		message.RouteField("errorRoute", func(p *SetErrorRoute) *route.Route { return &p.ErrorRoute }).
			AsOptional().
			WithDescription("where errors are sent, empty to stop reporting"),
	)
}

func queryFields() []message.Field[Query] {
	return []message.Field[Query]{
		message.RouteField("returnRoute", func(p *Query) *route.Route { return &p.ReturnRoute }).
			WithDescription("route of the reply, empty to answer on the arrival port"),
		message.Unsigned(message.MsgIDFieldName, func(p *Query) *uint64 { return &p.MsgID }),
	}
}

func newQueryManager(name string, code uint64) *message.Manager[Query] {
	return message.NewManager(name, code, queryFields()...)
}

func newQueryLogManager() *message.Manager[QueryLog] {
	return message.NewManager("QueryLog", QueryLogCode,
		message.RouteField("returnRoute", func(p *QueryLog) *route.Route { return &p.ReturnRoute }),
		message.Unsigned(message.MsgIDFieldName, func(p *QueryLog) *uint64 { return &p.MsgID }),
		message.Unsigned("index", func(p *QueryLog) *uint64 { return &p.Index }),
	)
}

func newReplyLogManager() *message.Manager[ReplyLog] {
	return message.NewManager("ReplyLog", ReplyLogCode,
		message.MsgIDField(func(p *ReplyLog) *message.ReplyBase { return &p.ReplyBase }),
		message.RouteField("logRoute", func(p *ReplyLog) *route.Route { return &p.LogRoute }),
	)
}

func newReplyNumManager(name string, code uint64) *message.Manager[ReplyNum] {
	return message.NewManager(name, code,
		message.MsgIDField(func(p *ReplyNum) *message.ReplyBase { return &p.ReplyBase }),
		message.Unsigned("count", func(p *ReplyNum) *uint64 { return &p.Count }),
	)
}

func newReplyTextManager(name string, code uint64, field string) *message.Manager[ReplyText] {
	return message.NewManager(name, code,
		message.MsgIDField(func(p *ReplyText) *message.ReplyBase { return &p.ReplyBase }),
		message.String(field, func(p *ReplyText) *string { return &p.Text }),
	)
}
