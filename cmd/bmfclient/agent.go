package main

import (
	"bufio"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dtn7/bmfbus/pkg/unix_agent"
)

type agentClient struct {
	reader *bufio.Reader
	writer *bufio.Writer
}

func (client agentClient) roundtrip(request, response any) {
	if err := unix_agent.Roundtrip(client.reader, client.writer, request, response); err != nil {
		fail(err)
	}
}

func check(response unix_agent.GeneralResponse) {
	if !response.Success {
		fail(response.Error)
	}
}

func (client agentClient) sendError(msg unix_agent.SendErrorMessage) {
	response := unix_agent.GeneralResponse{}
	client.roundtrip(&msg, &response)
	check(response)
	fmt.Println("Success")
}

func (client agentClient) query(msg unix_agent.QueryMessage) {
	response := unix_agent.QueryResponse{}
	client.roundtrip(&msg, &response)
	check(response.GeneralResponse)
	fmt.Println(response.MsgID)
}

func (client agentClient) fetchReply(msg unix_agent.FetchReplyMessage) {
	response := unix_agent.ReplyResponse{}
	client.roundtrip(&msg, &response)
	check(response.GeneralResponse)

	if !response.Ready {
		fmt.Println("No reply yet")
		os.Exit(2)
	}
	switch msg.Kind {
	case unix_agent.QueryNumLog, unix_agent.QueryMaxLog:
		fmt.Println(response.Number)
	default:
		fmt.Println(response.Text)
	}
}

func (client agentClient) listPorts() {
	response := unix_agent.PortsResponse{}
	client.roundtrip(&unix_agent.Message{Type: unix_agent.MsgTypeListPorts}, &response)
	check(response.GeneralResponse)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PORT\tCONNECTION\tENCODING\tADDRESS\tLOGGING")
	for _, port := range response.Ports {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\n", port.Port, port.Connection, port.Encoding, port.Address, port.Logging)
	}
	_ = w.Flush()
}

func (client agentClient) subscribe(msg unix_agent.SubscribeMessage) {
	response := unix_agent.GeneralResponse{}
	client.roundtrip(&msg, &response)
	check(response)
	fmt.Println("Success")
}

func (client agentClient) fetchErrors(msg unix_agent.FetchErrorsMessage) {
	response := unix_agent.ErrorsResponse{}
	client.roundtrip(&msg, &response)
	check(response.GeneralResponse)

	for _, received := range response.Errors {
		fmt.Printf("%s\t%s\tpriority=%d\tid=%d\t%s\n",
			time.Unix(received.Received, 0).Format(time.RFC3339), received.Source,
			received.Priority, received.ErrorID, received.Text)
	}
}
