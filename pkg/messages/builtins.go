// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"github.com/dtn7/bmfbus/pkg/claimcheck"
	"github.com/dtn7/bmfbus/pkg/id_keeper"
	"github.com/dtn7/bmfbus/pkg/message"
	"github.com/dtn7/bmfbus/pkg/route"
)

// Builtins bundles the managers and variables of the built-in message types.
type Builtins struct {
	Error           *message.Manager[Error]
	SetErrorRoute   *message.Manager[SetErrorRoute]
	QueryLog        *message.Manager[QueryLog]
	QueryNumLog     *message.Manager[Query]
	QueryMaxLog     *message.Manager[Query]
	QueryLanguage   *message.Manager[Query]
	QueryNumberType *message.Manager[Query]
	ReplyLog        *message.Manager[ReplyLog]
	ReplyNumLog     *message.Manager[ReplyNum]
	ReplyLanguage   *message.Manager[ReplyText]
	ReplyNumberType *message.Manager[ReplyText]

	Errors     *ErrorVariable
	ErrorRoute *ErrorRouteVariable
	Reporter   *ErrorReporter
	IDs        *id_keeper.IdKeeper

	logReplies        *ReplyLogVariable
	numReplies        replyNumVariable
	languageReplies   replyTextVariable
	numberTypeReplies replyTextVariable
}

// RegisterBuiltins registers every built-in type with registry. Queries are
// answered from node.
func RegisterBuiltins(registry *message.Registry, node Node) *Builtins {
	builtins := &Builtins{
		Error:           newErrorManager(),
		SetErrorRoute:   newSetErrorRouteManager(),
		QueryLog:        newQueryLogManager(),
		QueryNumLog:     newQueryManager("QueryNumLog", QueryNumLogCode),
		QueryMaxLog:     newQueryManager("QueryMaxLog", QueryMaxLogCode),
		QueryLanguage:   newQueryManager("QueryLanguage", QueryLanguageCode),
		QueryNumberType: newQueryManager("QueryNumberType", QueryNumberTypeCode),
		ReplyLog:        newReplyLogManager(),
		ReplyNumLog:     newReplyNumManager("ReplyNumLog", ReplyNumLogCode),
		ReplyLanguage:   newReplyTextManager("ReplyLanguage", ReplyLanguageCode, "language"),
		ReplyNumberType: newReplyTextManager("ReplyNumberType", ReplyNumberTypeCode, "numberType"),

		Errors:     &ErrorVariable{},
		ErrorRoute: &ErrorRouteVariable{},
		IDs:        id_keeper.NewIdKeeper(),

		logReplies:        &ReplyLogVariable{replies: claimcheck.NewMultiMap[uint64, route.Route]()},
		numReplies:        replyNumVariable{newReplyVariable[uint64](ReplyNumLogCode, "num_log_replies")},
		languageReplies:   replyTextVariable{newReplyVariable[string](ReplyLanguageCode, "language_replies")},
		numberTypeReplies: replyTextVariable{newReplyVariable[string](ReplyNumberTypeCode, "number_type_replies")},
	}
	builtins.Reporter = &ErrorReporter{manager: builtins.Error, route: builtins.ErrorRoute}

	must(builtins.Error.AddVariable(builtins.Errors))
	must(builtins.SetErrorRoute.AddVariable(builtins.ErrorRoute))
	must(builtins.ReplyLog.AddVariable(builtins.logReplies))
	must(builtins.ReplyNumLog.AddVariable(builtins.numReplies))
	must(builtins.ReplyLanguage.AddVariable(builtins.languageReplies))
	must(builtins.ReplyNumberType.AddVariable(builtins.numberTypeReplies))

	must(builtins.QueryLog.AddVariable(message.NewVariable(VariableID(QueryLogCode), "query_log",
		func(source route.Target, query QueryLog) {
			var logRoute route.Route
			if ports := node.LoggingPorts(); query.Index < uint64(len(ports)) {
				logRoute = route.Route{}.Prepend(ports[query.Index])
			}
			reply := ReplyLog{ReplyBase: message.ReplyBase{MsgID: query.MsgID}, LogRoute: logRoute}
			logReplyFailure("QueryLog", source, builtins.ReplyLog.Send(replyTarget(source, query.ReturnRoute, ReplyLogCode), reply))
		})))

	must(builtins.QueryNumLog.AddVariable(&queryVariable{
		id:   VariableID(QueryNumLogCode),
		name: "query_num_log",
		answer: func(source route.Target, query Query) error {
			return builtins.sendNum(source, query, uint64(len(node.LoggingPorts())))
		},
	}))
	must(builtins.QueryMaxLog.AddVariable(&queryVariable{
		id:   VariableID(QueryMaxLogCode),
		name: "query_max_log",
		answer: func(source route.Target, query Query) error {
			return builtins.sendNum(source, query, node.JournalCapacity())
		},
	}))
	must(builtins.QueryLanguage.AddVariable(&queryVariable{
		id:   VariableID(QueryLanguageCode),
		name: "query_language",
		answer: func(source route.Target, query Query) error {
			encoding, _ := node.PortEncoding(source.Port)
			reply := ReplyText{ReplyBase: message.ReplyBase{MsgID: query.MsgID}, Text: encoding.String()}
			return builtins.ReplyLanguage.Send(replyTarget(source, query.ReturnRoute, ReplyLanguageCode), reply)
		},
	}))
	must(builtins.QueryNumberType.AddVariable(&queryVariable{
		id:   VariableID(QueryNumberTypeCode),
		name: "query_number_type",
		answer: func(source route.Target, query Query) error {
			reply := ReplyText{ReplyBase: message.ReplyBase{MsgID: query.MsgID}, Text: node.NumberType()}
			return builtins.ReplyNumberType.Send(replyTarget(source, query.ReturnRoute, ReplyNumberTypeCode), reply)
		},
	}))

	for _, manager := range builtins.Managers() {
		registry.Register(manager)
	}
	return builtins
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Managers lists the built-in managers in type code order.
func (builtins *Builtins) Managers() []message.TypeManager {
	return []message.TypeManager{
		builtins.Error,
		builtins.SetErrorRoute,
		builtins.QueryLog,
		builtins.QueryNumLog,
		builtins.QueryMaxLog,
		builtins.QueryLanguage,
		builtins.QueryNumberType,
		builtins.ReplyLog,
		builtins.ReplyNumLog,
		builtins.ReplyLanguage,
		builtins.ReplyNumberType,
	}
}

func (builtins *Builtins) sendNum(source route.Target, query Query, count uint64) error {
	reply := ReplyNum{ReplyBase: message.ReplyBase{MsgID: query.MsgID}, Count: count}
	return builtins.ReplyNumLog.Send(replyTarget(source, query.ReturnRoute, ReplyNumLogCode), reply)
}

// SendError sends an Error message to target.
func (builtins *Builtins) SendError(target route.Target, priority, errorID uint64, text string) error {
	return builtins.Error.Send(target, Error{Priority: priority, ErrorID: errorID, Text: text})
}

// SetRemoteErrorRoute asks the node at target to report its errors along errorRoute.
func (builtins *Builtins) SetRemoteErrorRoute(target route.Target, minPriority uint64, errorRoute route.Route) error {
	return builtins.SetErrorRoute.Send(target, SetErrorRoute{MinPriority: minPriority, ErrorRoute: errorRoute})
}

func (builtins *Builtins) query(manager *message.Manager[Query], target route.Target, returnRoute route.Route) (uint64, error) {
	id := builtins.IDs.Next(returnRoute)
	if err := manager.Send(target, Query{ReturnRoute: returnRoute, MsgID: id}); err != nil {
		return 0, err
	}
	return id, nil
}

// SendQueryLog asks for the route of the index-th logging port. It returns the
// message ID to claim the answer with.
func (builtins *Builtins) SendQueryLog(target route.Target, returnRoute route.Route, index uint64) (uint64, error) {
	id := builtins.IDs.Next(returnRoute)
	err := builtins.QueryLog.Send(target, QueryLog{Query: Query{ReturnRoute: returnRoute, MsgID: id}, Index: index})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (builtins *Builtins) SendQueryNumLog(target route.Target, returnRoute route.Route) (uint64, error) {
	return builtins.query(builtins.QueryNumLog, target, returnRoute)
}

func (builtins *Builtins) SendQueryMaxLog(target route.Target, returnRoute route.Route) (uint64, error) {
	return builtins.query(builtins.QueryMaxLog, target, returnRoute)
}

func (builtins *Builtins) SendQueryLanguage(target route.Target, returnRoute route.Route) (uint64, error) {
	return builtins.query(builtins.QueryLanguage, target, returnRoute)
}

func (builtins *Builtins) SendQueryNumberType(target route.Target, returnRoute route.Route) (uint64, error) {
	return builtins.query(builtins.QueryNumberType, target, returnRoute)
}

// GetLogFromMessageID claims the oldest ReplyLog answer to a query.
func (builtins *Builtins) GetLogFromMessageID(msgID uint64) (route.Route, bool) {
	return builtins.logReplies.replies.Claim(msgID)
}

// GetNumFromMessageID claims the ReplyNumLog answer to a QueryNumLog or QueryMaxLog.
func (builtins *Builtins) GetNumFromMessageID(msgID uint64) (uint64, bool) {
	return builtins.numReplies.replies.Claim(msgID)
}

func (builtins *Builtins) GetLanguageFromMessageID(msgID uint64) (string, bool) {
	return builtins.languageReplies.replies.Claim(msgID)
}

func (builtins *Builtins) GetNumberTypeFromMessageID(msgID uint64) (string, bool) {
	return builtins.numberTypeReplies.replies.Claim(msgID)
}

// PendingReplies returns the number of unclaimed answers.
func (builtins *Builtins) PendingReplies() int {
	return builtins.logReplies.replies.Len() + builtins.numReplies.replies.Len() +
		builtins.languageReplies.replies.Len() + builtins.numberTypeReplies.replies.Len()
}
