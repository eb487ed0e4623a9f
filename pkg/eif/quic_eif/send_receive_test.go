// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quic_eif

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/pml"
)

type collector struct {
	messages []*pml.Message
}

func (c *collector) DispatchBMF(_ uint32, _ []byte) {}

func (c *collector) DispatchPML(_ uint32, msg *pml.Message) {
	c.messages = append(c.messages, msg)
}

func TestSendReceive(t *testing.T) {
	handler := NewHandler(eif.PML)
	defer handler.Close()

	adopted := make(chan *eif.Interface, 1)
	listeners, err := handler.Open(eif.Spec{
		Address: "127.0.0.1:0",
		Listen:  true,
		Read:    true,
		Write:   true,
		Instant: true,
		Adopt:   func(iface *eif.Interface) { adopted <- iface },
	})
	require.NoError(t, err)
	require.Len(t, listeners, 1)

	dialled, err := handler.Open(eif.Spec{Address: listeners[0].Address(), Read: true, Write: true, Instant: true})
	require.NoError(t, err)
	client := dialled[0]
	defer client.Close()

	sent := pml.NewMessage("Error")
	sent.Set("priority", false, "5")
	sent.Set("errorID", false, "42")
	sent.Set("text", false, "disk full")
	require.NoError(t, client.SendPML(sent))

	var server *eif.Interface
	select {
	case server = <-adopted:
	case <-time.After(5 * time.Second):
		t.Fatal("No QUIC stream was adopted")
	}
	defer server.Close()

	received := &collector{}
	deadline := time.Now().Add(5 * time.Second)
	for len(received.messages) == 0 && time.Now().Before(deadline) {
		server.Update(received)
		time.Sleep(time.Millisecond)
	}
	require.Len(t, received.messages, 1)
	assert.Equal(t, "Error", received.messages[0].Type)
	text, ok := received.messages[0].Get("text", false)
	assert.True(t, ok)
	assert.Equal(t, "disk full", text)

	require.NoError(t, client.Close())
	for server.Update(received) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, server.Ended())
}
