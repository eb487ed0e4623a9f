// SPDX-FileCopyrightText: 2025 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/akamensky/argparse"

	"github.com/dtn7/bmfbus/pkg/unix_agent"
)

func fail(err any) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

type targetArgs struct {
	broadcast *bool
	route     *string
	port      *int
	variable  *int
}

func addTargetArgs(cmd *argparse.Command) targetArgs {
	return targetArgs{
		broadcast: cmd.Flag("b", "broadcast", &argparse.Options{
			Help: "Send to every port",
		}),
		route: cmd.String("R", "route", &argparse.Options{
			Help:    "Route to the receiving node, e.g. 3.1.arm",
			Default: "",
		}),
		port: cmd.Int("p", "port", &argparse.Options{
			Help:    "Local port to send out of",
			Default: -1,
		}),
		variable: cmd.Int("v", "variable", &argparse.Options{
			Help:    "Receiving variable ID, 0 for every variable of the type",
			Default: 0,
		}),
	}
}

func (args targetArgs) target() unix_agent.Target {
	target := unix_agent.Target{
		Broadcast: *args.broadcast,
		Route:     *args.route,
		Variable:  uint32(*args.variable),
	}
	if *args.port >= 0 {
		target.HasPort = true
		target.Port = uint32(*args.port)
	}
	return target
}

func main() {
	parser := argparse.NewParser("bmfclient", "Send messages onto a bus, directly or via bmfd's UNIX agent")
	parser.ExitOnHelp(true)
	address := parser.String("a", "address", &argparse.Options{
		Help:     "UNIX socket",
		Required: false,
		Default:  "/tmp/bmfd.socket",
	})

	direct := parser.NewCommand("direct", "Send one BMF message to a TCP address without a running bmfd")
	directAddress := direct.String("t", "tcp", &argparse.Options{
		Help:     "host:port of the receiving node",
		Required: true,
	})
	directKind := direct.Selector("k", "kind", []string{"error", "num-log"}, &argparse.Options{
		Help:    "Message to send",
		Default: "error",
	})
	directVariable := direct.Int("v", "variable", &argparse.Options{
		Help:    "Receiving variable ID",
		Default: 0,
	})
	directPriority := direct.Int("P", "priority", &argparse.Options{
		Help:    "Error priority",
		Default: 0,
	})
	directErrorID := direct.Int("e", "error-id", &argparse.Options{
		Help:    "Error ID",
		Default: 0,
	})
	directText := direct.String("m", "text", &argparse.Options{
		Help:    "Error text",
		Default: "",
	})
	directWait := direct.Flag("w", "wait", &argparse.Options{
		Help: "Wait for the reply of a query",
	})
	directTimeout := direct.String("T", "timeout", &argparse.Options{
		Help:    "How long to wait for a reply",
		Default: "5s",
	})

	sendError := parser.NewCommand("error", "Send an Error message")
	errorTarget := addTargetArgs(sendError)
	errorPriority := sendError.Int("P", "priority", &argparse.Options{
		Help:    "Error priority",
		Default: 0,
	})
	errorID := sendError.Int("e", "error-id", &argparse.Options{
		Help:    "Error ID",
		Default: 0,
	})
	errorText := sendError.String("m", "text", &argparse.Options{
		Help:     "Error text",
		Required: true,
	})

	kinds := make([]string, 0, len(unix_agent.QueryKinds))
	for _, kind := range unix_agent.QueryKinds {
		kinds = append(kinds, string(kind))
	}

	query := parser.NewCommand("query", "Send a query; prints the message ID to fetch the reply with")
	queryTarget := addTargetArgs(query)
	queryKind := query.Selector("k", "kind", kinds, &argparse.Options{
		Help:     "Query to send",
		Required: true,
	})
	queryReturn := query.String("r", "return", &argparse.Options{
		Help:    "Route the reply takes back to this node, empty for the arrival port",
		Default: "",
	})
	queryIndex := query.Int("i", "index", &argparse.Options{
		Help:    "Logging port index of a log query",
		Default: 0,
	})

	reply := parser.NewCommand("reply", "Fetch the reply to a query")
	replyKind := reply.Selector("k", "kind", kinds, &argparse.Options{
		Help:     "Kind of the query",
		Required: true,
	})
	replyID := reply.Int("i", "id", &argparse.Options{
		Help:     "Message ID printed by query",
		Required: true,
	})

	ports := parser.NewCommand("ports", "List the open ports")

	subscribe := parser.NewCommand("subscribe", "Create an inbox for received Error messages")
	subscribeName := subscribe.String("s", "subscriber", &argparse.Options{
		Help:     "Name of the inbox",
		Required: true,
	})
	subscribeCapacity := subscribe.Int("c", "capacity", &argparse.Options{
		Help:    "Messages kept before the oldest is dropped, 0 for the default",
		Default: 0,
	})
	unsubscribe := parser.NewCommand("unsubscribe", "Remove an inbox")
	unsubscribeName := unsubscribe.String("s", "subscriber", &argparse.Options{
		Help:     "Name of the inbox",
		Required: true,
	})

	errs := parser.NewCommand("errors", "Read received Error messages from an inbox")
	errsName := errs.String("s", "subscriber", &argparse.Options{
		Help:     "Name of the inbox",
		Required: true,
	})
	errsNew := errs.Flag("n", "new", &argparse.Options{
		Help: "Only messages which have not been read before",
	})
	errsRemove := errs.Flag("r", "remove", &argparse.Options{
		Help: "Delete messages from the inbox after reading",
	})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if direct.Happened() {
		timeout, err := time.ParseDuration(*directTimeout)
		if err != nil {
			fail(err)
		}
		handleDirect(directRequest{
			address:  *directAddress,
			kind:     *directKind,
			variable: uint32(*directVariable),
			priority: uint64(*directPriority),
			errorID:  uint64(*directErrorID),
			text:     *directText,
			wait:     *directWait,
			timeout:  timeout,
		})
		return
	}

	socketAddr, err := net.ResolveUnixAddr("unix", *address)
	if err != nil {
		fail(err)
	}
	conn, err := net.DialUnix("unix", nil, socketAddr)
	if err != nil {
		fail(err)
	}
	defer conn.Close()
	client := agentClient{reader: bufio.NewReader(conn), writer: bufio.NewWriter(conn)}

	if sendError.Happened() {
		client.sendError(unix_agent.SendErrorMessage{
			Message:  unix_agent.Message{Type: unix_agent.MsgTypeSendError},
			Target:   errorTarget.target(),
			Priority: uint64(*errorPriority),
			ErrorID:  uint64(*errorID),
			Text:     *errorText,
		})
	} else if query.Happened() {
		client.query(unix_agent.QueryMessage{
			Message:     unix_agent.Message{Type: unix_agent.MsgTypeQuery},
			Target:      queryTarget.target(),
			Kind:        unix_agent.QueryKind(*queryKind),
			ReturnRoute: *queryReturn,
			Index:       uint64(*queryIndex),
		})
	} else if reply.Happened() {
		client.fetchReply(unix_agent.FetchReplyMessage{
			Message: unix_agent.Message{Type: unix_agent.MsgTypeFetchReply},
			Kind:    unix_agent.QueryKind(*replyKind),
			MsgID:   uint64(*replyID),
		})
	} else if ports.Happened() {
		client.listPorts()
	} else if subscribe.Happened() {
		client.subscribe(unix_agent.SubscribeMessage{
			Message:    unix_agent.Message{Type: unix_agent.MsgTypeSubscribe},
			Subscriber: *subscribeName,
			Capacity:   *subscribeCapacity,
		})
	} else if unsubscribe.Happened() {
		client.subscribe(unix_agent.SubscribeMessage{
			Message:    unix_agent.Message{Type: unix_agent.MsgTypeUnsubscribe},
			Subscriber: *unsubscribeName,
		})
	} else if errs.Happened() {
		client.fetchErrors(unix_agent.FetchErrorsMessage{
			Message:    unix_agent.Message{Type: unix_agent.MsgTypeFetchErrors},
			Subscriber: *errsName,
			OnlyNew:    *errsNew,
			Remove:     *errsRemove,
		})
	}
}
