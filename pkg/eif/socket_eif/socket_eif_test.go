// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package socket_eif

import (
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/pml"
)

type collector struct {
	mutex    sync.Mutex
	messages [][]byte
}

func (c *collector) DispatchBMF(_ uint32, msg []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *collector) DispatchPML(_ uint32, _ *pml.Message) {}

func (c *collector) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.messages)
}

func encodeMessage(values []uint64) []byte {
	buf := bmf.NewMessageBuffer()
	for _, v := range values {
		buf.PutUnsigned(v)
	}
	buf.PutEnd()
	return append([]byte(nil), buf.Bytes()...)
}

func TestSendReceive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		handler := NewHandler(eif.BMF)
		defer handler.Close()

		adopted := make(chan *eif.Interface, 8)
		listeners, err := handler.Open(eif.Spec{
			Address: "127.0.0.1:0",
			Listen:  true,
			Read:    true,
			Write:   true,
			Instant: true,
			Adopt:   func(iface *eif.Interface) { adopted <- iface },
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(listeners) != 1 || listeners[0].Writable() {
			t.Fatalf("Expected one non-writable listener interface, got %v", listeners)
		}

		dialled, err := handler.Open(eif.Spec{Address: listeners[0].Address(), Read: true, Write: true, Instant: true})
		if err != nil {
			t.Fatal(err)
		}
		client := dialled[0]
		defer client.Close()

		var server *eif.Interface
		select {
		case server = <-adopted:
		case <-time.After(2 * time.Second):
			t.Fatal("No connection was accepted")
		}
		defer server.Close()

		numberOfMessages := rapid.IntRange(1, 50).Draw(t, "Number of Messages")
		for i := 0; i < numberOfMessages; i++ {
			values := rapid.SliceOfN(rapid.Uint64(), 1, 8).Draw(t, "values")
			if err := client.SendBMF(encodeMessage(values)); err != nil {
				t.Fatal(err)
			}
		}

		received := &collector{}
		deadline := time.Now().Add(5 * time.Second)
		for received.count() < numberOfMessages && time.Now().Before(deadline) {
			server.Update(received)
			time.Sleep(time.Millisecond)
		}
		if received.count() != numberOfMessages {
			t.Fatalf("Received %d of %d messages", received.count(), numberOfMessages)
		}

		_ = client.Close()
		for server.Update(received) && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if !server.Ended() {
			t.Fatal("Server interface did not notice the closed connection")
		}
	})
}

func TestListenWithoutAdopt(t *testing.T) {
	handler := NewHandler(eif.PML)
	if _, err := handler.Open(eif.Spec{Address: "127.0.0.1:0", Listen: true}); err == nil {
		t.Fatal("Listening without Adopt succeeded")
	}
}

func TestCloseStopsListener(t *testing.T) {
	handler := NewHandler(eif.BMF)
	listeners, err := handler.Open(eif.Spec{Address: "127.0.0.1:0", Listen: true, Adopt: func(*eif.Interface) {}})
	if err != nil {
		t.Fatal(err)
	}
	if err := handler.Close(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for listeners[0].Update(&collector{}) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !listeners[0].Ended() {
		t.Fatal("Listener interface did not end")
	}
}
