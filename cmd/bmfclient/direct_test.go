package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/eif/dummy_eif"
	"github.com/dtn7/bmfbus/pkg/messages"
	"github.com/dtn7/bmfbus/pkg/processing"
	"github.com/dtn7/bmfbus/pkg/route"
)

// pair connects two private buses with a dummy pipe.
func pair(t *testing.T) (client, server *processing.Core) {
	client = processing.NewCore("", nil)
	server = processing.NewCore("float32", nil)
	for _, core := range []*processing.Core{client, server} {
		core := core
		core.Start()
		t.Cleanup(func() {
			_ = core.Stop()
		})
	}

	near, far := dummy_eif.NewPipePair("client", "server")
	require.NoError(t, client.Do(func(c *processing.Core) {
		c.Director.AddInterface(dummy_eif.NewInterface(eif.BMF, near))
	}))
	require.NoError(t, server.Do(func(c *processing.Core) {
		c.Director.AddInterface(dummy_eif.NewInterface(eif.BMF, far))
	}))
	return client, server
}

func TestSendDirectError(t *testing.T) {
	client, server := pair(t)

	received := make(chan messages.Error, 1)
	require.NoError(t, server.Do(func(c *processing.Core) {
		c.Builtins.Errors.OnError(func(_ route.Target, err messages.Error) {
			received <- err
		})
	}))

	result, err := sendDirect(client, route.NewPort(0, 0), directRequest{kind: "error", priority: 5, errorID: 42, text: "disk full"})
	require.NoError(t, err)
	assert.Equal(t, "Success", result)

	_, err = server.Tick()
	require.NoError(t, err)
	select {
	case msg := <-received:
		assert.Equal(t, messages.Error{Priority: 5, ErrorID: 42, Text: "disk full"}, msg)
	default:
		t.Fatal("Error message was not delivered")
	}
}

func TestSendDirectQueryWaits(t *testing.T) {
	client, server := pair(t)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(time.Millisecond):
				_, _ = server.Tick()
			}
		}
	}()

	result, err := sendDirect(client, route.NewPort(0, 0), directRequest{kind: "num-log", wait: true, timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "0", result)
}

func TestSendDirectQueryTimeout(t *testing.T) {
	client, _ := pair(t)

	_, err := sendDirect(client, route.NewPort(0, 0), directRequest{kind: "num-log", wait: true, timeout: 50 * time.Millisecond})
	assert.Error(t, err)
}

func TestSendDirectQueryNoWait(t *testing.T) {
	client, _ := pair(t)

	result, err := sendDirect(client, route.NewPort(0, 0), directRequest{kind: "num-log"})
	require.NoError(t, err)
	assert.Equal(t, "1", result)
}

func TestSendDirectUnknownKind(t *testing.T) {
	client, _ := pair(t)

	_, err := sendDirect(client, route.NewPort(0, 0), directRequest{kind: "poem"})
	assert.Error(t, err)
}
