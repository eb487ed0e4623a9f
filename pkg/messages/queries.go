// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/claimcheck"
	"github.com/dtn7/bmfbus/pkg/message"
	"github.com/dtn7/bmfbus/pkg/route"
)

// replyTarget addresses the answer to a query: along its return route, or back
// through the arrival port if the return route is empty.
func replyTarget(source route.Target, returnRoute route.Route, code uint64) route.Target {
	if returnRoute.Arrived() {
		return route.NewPort(source.Port, VariableID(code))
	}
	return route.NewRemote(returnRoute, VariableID(code))
}

func logReplyFailure(query string, source route.Target, err error) {
	if err != nil {
		log.WithFields(log.Fields{
			"query":  query,
			"source": source,
			"error":  err,
		}).Warn("Answering query failed")
	}
}

// queryVariable answers one query type without arguments.
type queryVariable struct {
	id     uint32
	name   string
	answer func(source route.Target, query Query) error
}

func (variable *queryVariable) ID() uint32 {
	return variable.id
}

func (variable *queryVariable) Name() string {
	return variable.name
}

func (variable *queryVariable) Receive(source route.Target, query Query) {
	logReplyFailure(variable.name, source, variable.answer(source, query))
}

// ReplyLogVariable collects ReplyLog answers. A query sent to several nodes may
// be answered more than once; answers are claimed oldest first.
type ReplyLogVariable struct {
	replies *claimcheck.MultiMap[uint64, route.Route]
}

func (variable *ReplyLogVariable) ID() uint32 {
	return VariableID(ReplyLogCode)
}

func (variable *ReplyLogVariable) Name() string {
	return "log_replies"
}

func (variable *ReplyLogVariable) Receive(_ route.Target, reply ReplyLog) {
	variable.replies.Put(reply.MsgID, reply.LogRoute)
}

// replyVariable collects one kind of answer by message ID.
type replyVariable[V any] struct {
	id      uint32
	name    string
	replies *claimcheck.Map[uint64, V]
}

func newReplyVariable[V any](code uint64, name string) *replyVariable[V] {
	return &replyVariable[V]{id: VariableID(code), name: name, replies: claimcheck.NewMap[uint64, V]()}
}

func (variable *replyVariable[V]) ID() uint32 {
	return variable.id
}

func (variable *replyVariable[V]) Name() string {
	return variable.name
}

func (variable *replyVariable[V]) put(msgID uint64, value V) {
	variable.replies.Put(msgID, value)
}

type replyNumVariable struct {
	*replyVariable[uint64]
}

func (variable replyNumVariable) Receive(_ route.Target, reply ReplyNum) {
	variable.put(reply.MsgID, reply.Count)
}

type replyTextVariable struct {
	*replyVariable[string]
}

func (variable replyTextVariable) Receive(_ route.Target, reply ReplyText) {
	variable.put(reply.MsgID, reply.Text)
}

var (
	_ message.Variable[Query]     = (*queryVariable)(nil)
	_ message.Variable[ReplyLog]  = (*ReplyLogVariable)(nil)
	_ message.Variable[ReplyNum]  = replyNumVariable{}
	_ message.Variable[ReplyText] = replyTextVariable{}
)
