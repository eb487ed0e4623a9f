// SPDX-FileCopyrightText: 2025 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package unix_agent offers a local control socket of a running bus.
//
// Clients exchange msgpack-encoded messages, each prefixed by its 8-byte length,
// over a UNIX domain socket. Every request is answered by exactly one response; a
// connection may carry any number of requests. See messages.go for their types.
package unix_agent

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dtn7/bmfbus/pkg/application_agent"
	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/processing"
	"github.com/dtn7/bmfbus/pkg/route"
)

// UNIXAgent allows for communication with bmfd via a UNIX domain socket
type UNIXAgent struct {
	listenAddress *net.UnixAddr
	listener      *net.UnixListener
	core          *processing.Core
	mailboxes     *application_agent.MailboxBank
}

// NewUNIXAgent creates an agent serving core. Subscriptions create inboxes in mailboxes.
func NewUNIXAgent(listenAddress string, core *processing.Core, mailboxes *application_agent.MailboxBank) (*UNIXAgent, error) {
	unixAddr, err := net.ResolveUnixAddr("unix", listenAddress)
	if err != nil {
		return nil, err
	}

	return &UNIXAgent{listenAddress: unixAddr, core: core, mailboxes: mailboxes}, nil
}

func (agent *UNIXAgent) Name() string {
	return fmt.Sprintf("UNIXAgent(%v)", agent.listenAddress)
}

func (agent *UNIXAgent) Start() error {
	log.WithField("address", agent.listenAddress).Info("Starting UNIXAgent")

	// a stale socket of a previous run would make listening fail
	if _, err := os.Stat(agent.listenAddress.Name); err == nil {
		_ = os.Remove(agent.listenAddress.Name)
	}

	listener, err := net.ListenUnix("unix", agent.listenAddress)
	if err != nil {
		return err
	}
	agent.listener = listener

	go agent.listen()
	return nil
}

func (agent *UNIXAgent) Shutdown() {
	log.WithField("listenAddress", agent.listenAddress).Info("Shutting agent down")
	if agent.listener != nil {
		_ = agent.listener.Close()
	}
}

func (agent *UNIXAgent) listen() {
	defer func() {
		log.WithField("listenAddress", agent.listenAddress).Info("Cleaning up socket")
	}()

	for {
		conn, err := agent.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.WithField("error", err).Error("UNIXAgent failed to accept connection")
			}
			return
		}
		go agent.handleConnection(conn)
	}
}

func (agent *UNIXAgent) handleConnection(conn net.Conn) {
	defer conn.Close()

	connReader := bufio.NewReader(conn)
	connWriter := bufio.NewWriter(conn)

	for {
		msgBytes, err := ReadFrame(connReader)
		if errors.Is(err, io.EOF) {
			return
		} else if err != nil {
			log.WithField("error", err).Error("Failed reading message")
			return
		}

		reply, err := agent.handleMessage(msgBytes)
		if err != nil {
			log.WithField("error", err).Error("Failed handling message")
			return
		}

		if err := WriteFrame(connWriter, reply); err != nil {
			log.WithField("error", err).Error("Error sending reply")
			return
		}
	}
}

func (agent *UNIXAgent) handleMessage(msgBytes []byte) (any, error) {
	message := Message{}
	if err := msgpack.Unmarshal(msgBytes, &message); err != nil {
		return nil, err
	}
	log.WithField("type", message.Type).Debug("Received message")

	switch message.Type {
	case MsgTypeSendError:
		typedMessage := SendErrorMessage{}
		if err := msgpack.Unmarshal(msgBytes, &typedMessage); err != nil {
			return nil, err
		}
		return agent.handleSendError(&typedMessage), nil

	case MsgTypeQuery:
		typedMessage := QueryMessage{}
		if err := msgpack.Unmarshal(msgBytes, &typedMessage); err != nil {
			return nil, err
		}
		return agent.handleQuery(&typedMessage), nil

	case MsgTypeFetchReply:
		typedMessage := FetchReplyMessage{}
		if err := msgpack.Unmarshal(msgBytes, &typedMessage); err != nil {
			return nil, err
		}
		return agent.handleFetchReply(&typedMessage), nil

	case MsgTypeListPorts:
		return agent.handleListPorts(), nil

	case MsgTypeSubscribe, MsgTypeUnsubscribe:
		typedMessage := SubscribeMessage{}
		if err := msgpack.Unmarshal(msgBytes, &typedMessage); err != nil {
			return nil, err
		}
		return agent.handleSubscribe(&typedMessage, message.Type == MsgTypeSubscribe), nil

	case MsgTypeFetchErrors:
		typedMessage := FetchErrorsMessage{}
		if err := msgpack.Unmarshal(msgBytes, &typedMessage); err != nil {
			return nil, err
		}
		return agent.handleFetchErrors(&typedMessage), nil

	default:
		return failure(fmt.Errorf("unknown message type %d", message.Type)), nil
	}
}

func success() GeneralResponse {
	return GeneralResponse{Message: Message{Type: MsgTypeGeneralResponse}, Success: true}
}

func failure(err error) GeneralResponse {
	return GeneralResponse{Message: Message{Type: MsgTypeGeneralResponse}, Success: false, Error: err.Error()}
}

// Resolve turns the wire form of a Target into a route.Target.
func (target Target) Resolve() (route.Target, error) {
	switch {
	case target.Broadcast:
		t := route.NewBroadcast()
		t.VariableID = target.Variable
		return t, nil
	case target.HasPort:
		return route.NewPort(target.Port, target.Variable), nil
	case target.Route != "":
		r, err := route.Parse(target.Route)
		if err != nil {
			return route.Target{}, err
		}
		return route.NewRemote(r, target.Variable), nil
	default:
		return route.Target{}, fmt.Errorf("target selects neither broadcast, port nor route")
	}
}

func (agent *UNIXAgent) handleSendError(message *SendErrorMessage) GeneralResponse {
	target, err := message.Target.Resolve()
	if err != nil {
		return failure(err)
	}

	var sendErr error
	if err := agent.core.Do(func(c *processing.Core) {
		sendErr = c.Builtins.SendError(target, message.Priority, message.ErrorID, message.Text)
	}); err != nil {
		return failure(err)
	}
	if sendErr != nil {
		return failure(sendErr)
	}

	log.WithFields(log.Fields{
		"target":   target,
		"priority": message.Priority,
		"error_id": message.ErrorID,
	}).Info("UNIX client sent error message")
	return success()
}

func (agent *UNIXAgent) handleQuery(message *QueryMessage) QueryResponse {
	response := QueryResponse{GeneralResponse: success()}
	response.Type = MsgTypeQueryResponse

	target, err := message.Target.Resolve()
	if err != nil {
		response.GeneralResponse = failure(err)
		return response
	}
	returnRoute, err := route.Parse(message.ReturnRoute)
	if err != nil {
		response.GeneralResponse = failure(err)
		return response
	}

	var sendErr error
	doErr := agent.core.Do(func(c *processing.Core) {
		switch message.Kind {
		case QueryLog:
			response.MsgID, sendErr = c.Builtins.SendQueryLog(target, returnRoute, message.Index)
		case QueryNumLog:
			response.MsgID, sendErr = c.Builtins.SendQueryNumLog(target, returnRoute)
		case QueryMaxLog:
			response.MsgID, sendErr = c.Builtins.SendQueryMaxLog(target, returnRoute)
		case QueryLanguage:
			response.MsgID, sendErr = c.Builtins.SendQueryLanguage(target, returnRoute)
		case QueryNumberType:
			response.MsgID, sendErr = c.Builtins.SendQueryNumberType(target, returnRoute)
		default:
			sendErr = fmt.Errorf("unknown query %q", message.Kind)
		}
	})
	if doErr != nil {
		sendErr = doErr
	}
	if sendErr != nil {
		response.GeneralResponse = failure(sendErr)
		response.Type = MsgTypeQueryResponse
	}
	return response
}

func (agent *UNIXAgent) handleFetchReply(message *FetchReplyMessage) ReplyResponse {
	response := ReplyResponse{GeneralResponse: success()}
	response.Type = MsgTypeReplyResponse

	var kindErr error
	doErr := agent.core.Do(func(c *processing.Core) {
		switch message.Kind {
		case QueryLog:
			var logRoute route.Route
			logRoute, response.Ready = c.Builtins.GetLogFromMessageID(message.MsgID)
			response.Text = logRoute.String()
		case QueryNumLog, QueryMaxLog:
			response.Number, response.Ready = c.Builtins.GetNumFromMessageID(message.MsgID)
		case QueryLanguage:
			response.Text, response.Ready = c.Builtins.GetLanguageFromMessageID(message.MsgID)
		case QueryNumberType:
			response.Text, response.Ready = c.Builtins.GetNumberTypeFromMessageID(message.MsgID)
		default:
			kindErr = fmt.Errorf("unknown query %q", message.Kind)
		}
	})
	if doErr != nil {
		kindErr = doErr
	}
	if kindErr != nil {
		response.GeneralResponse = failure(kindErr)
		response.Type = MsgTypeReplyResponse
	}
	return response
}

func (agent *UNIXAgent) handleListPorts() PortsResponse {
	response := PortsResponse{GeneralResponse: success(), Ports: []PortInfo{}}
	response.Type = MsgTypePortsResponse

	if err := agent.core.Do(func(c *processing.Core) {
		c.Director.ForEach(func(iface *eif.Interface) {
			response.Ports = append(response.Ports, PortInfo{
				Port:       iface.Port(),
				Connection: iface.Connection().String(),
				Encoding:   iface.Encoding().String(),
				Address:    iface.Address(),
				Logging:    iface.IsLogging(),
			})
		})
	}); err != nil {
		response.GeneralResponse = failure(err)
		response.Type = MsgTypePortsResponse
	}
	return response
}

func (agent *UNIXAgent) handleSubscribe(message *SubscribeMessage, subscribe bool) GeneralResponse {
	if agent.mailboxes == nil {
		return failure(fmt.Errorf("error inboxes are disabled"))
	}

	var err error
	if subscribe {
		err = agent.mailboxes.Register(message.Subscriber, message.Capacity)
	} else {
		err = agent.mailboxes.Unregister(message.Subscriber)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"subscriber": message.Subscriber,
			"subscribe":  subscribe,
			"error":      err,
		}).Debug("Changing subscription failed")
		return failure(err)
	}

	log.WithFields(log.Fields{
		"subscriber": message.Subscriber,
		"subscribe":  subscribe,
	}).Info("UNIX client changed error subscription")
	return success()
}

func (agent *UNIXAgent) handleFetchErrors(message *FetchErrorsMessage) ErrorsResponse {
	response := ErrorsResponse{GeneralResponse: success(), Errors: []ReceivedError{}}
	response.Type = MsgTypeErrorsResponse

	if agent.mailboxes == nil {
		response.GeneralResponse = failure(fmt.Errorf("error inboxes are disabled"))
		response.Type = MsgTypeErrorsResponse
		return response
	}

	mailbox, err := agent.mailboxes.GetMailbox(message.Subscriber)
	if err != nil {
		response.GeneralResponse = failure(err)
		response.Type = MsgTypeErrorsResponse
		return response
	}

	var received []application_agent.ReceivedError
	if message.OnlyNew {
		received = mailbox.GetNew(message.Remove)
	} else {
		received = mailbox.GetAll(message.Remove)
	}

	for _, msg := range received {
		response.Errors = append(response.Errors, ReceivedError{
			Source:   msg.Source.String(),
			Priority: msg.Error.Priority,
			ErrorID:  msg.Error.ErrorID,
			Text:     msg.Error.Text,
			Received: msg.Received.Unix(),
		})
	}
	return response
}
