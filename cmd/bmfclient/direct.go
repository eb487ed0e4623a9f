package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/eif/socket_eif"
	"github.com/dtn7/bmfbus/pkg/processing"
	"github.com/dtn7/bmfbus/pkg/route"
)

const pollInterval = 10 * time.Millisecond

type directRequest struct {
	address  string
	kind     string
	variable uint32
	priority uint64
	errorID  uint64
	text     string
	wait     bool
	timeout  time.Duration
}

// handleDirect connects to a node over TCP and sends a single BMF message on a
// private bus. Replies come back over the same connection.
func handleDirect(request directRequest) {
	log.SetLevel(log.WarnLevel)

	core := processing.NewCore("", nil)
	core.Start()
	defer core.Stop()
	socket_eif.Register(core)

	ports, err := core.Open(eif.Socket, eif.BMF, eif.Spec{Address: request.address, Read: true, Write: true, Instant: true})
	if err != nil {
		fail(err)
	}
	target := route.NewPort(ports[0], request.variable)

	result, err := sendDirect(core, target, request)
	if err != nil {
		fail(err)
	}
	fmt.Println(result)
}

func sendDirect(core *processing.Core, target route.Target, request directRequest) (string, error) {
	var msgID uint64
	var sendErr error
	if err := core.Do(func(c *processing.Core) {
		switch request.kind {
		case "error":
			sendErr = c.Builtins.SendError(target, request.priority, request.errorID, request.text)
		case "num-log":
			msgID, sendErr = c.Builtins.SendQueryNumLog(target, route.Route{})
		default:
			sendErr = fmt.Errorf("unknown message kind %q", request.kind)
		}
	}); err != nil {
		return "", err
	}
	if sendErr != nil {
		return "", sendErr
	}

	if msgID == 0 {
		return "Success", nil
	}
	if !request.wait {
		return fmt.Sprintf("%d", msgID), nil
	}

	deadline := time.Now().Add(request.timeout)
	for time.Now().Before(deadline) {
		live, err := core.Tick()
		if err != nil {
			return "", err
		}

		var count uint64
		var ready bool
		if err := core.Do(func(c *processing.Core) {
			count, ready = c.Builtins.GetNumFromMessageID(msgID)
		}); err != nil {
			return "", err
		}
		if ready {
			return fmt.Sprintf("%d", count), nil
		}
		if !live {
			return "", fmt.Errorf("connection closed before the reply arrived")
		}
		time.Sleep(pollInterval)
	}
	return "", fmt.Errorf("no reply within %v", request.timeout)
}
