package discovery

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/dtn7/bmfbus/pkg/eif"
)

func generateAnnouncement(t *rapid.T, label string) Announcement {
	return Announcement{
		Node:       rapid.StringMatching(`[a-z0-9]{1,20}`).Draw(t, label+" node"),
		Connection: rapid.SampledFrom([]eif.ConnectionType{eif.Socket, eif.QUIC}).Draw(t, label+" connection"),
		Encoding:   rapid.SampledFrom(eif.Encodings).Draw(t, label+" encoding"),
		Port:       rapid.Uint16().Draw(t, label+" port"),
	}
}

func TestAnnouncementsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "announcements")
		announcements := make([]Announcement, n)
		for i := range announcements {
			announcements[i] = generateAnnouncement(t, "announcement")
		}

		data, err := MarshalAnnouncements(announcements)
		if err != nil {
			t.Fatal(err)
		}

		decoded, err := UnmarshalAnnouncements(data)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(announcements, decoded) {
			t.Fatalf("Announcements differ: %v vs %v", announcements, decoded)
		}
	})
}

func TestUnmarshalTruncated(t *testing.T) {
	data, err := MarshalAnnouncements([]Announcement{{Node: "a", Connection: eif.Socket, Encoding: eif.BMF, Port: 4556}})
	if err != nil {
		t.Fatal(err)
	}

	// keep the count, drop the announcement itself
	truncated := []byte{data[0], 0x00}
	if _, err := UnmarshalAnnouncements(truncated); err == nil {
		t.Fatal("Truncated announcement was accepted")
	}
}

func TestHandleDiscovery(t *testing.T) {
	var mutex sync.Mutex
	registered := make(map[string]Announcement)
	done := make(chan struct{}, 4)

	manager := newManager("self", func(announcement Announcement, address string) {
		mutex.Lock()
		registered[address] = announcement
		mutex.Unlock()
		done <- struct{}{}
	})

	own := Announcement{Node: "self", Connection: eif.Socket, Encoding: eif.BMF, Port: 1}
	peer := Announcement{Node: "peer", Connection: eif.Socket, Encoding: eif.PML, Port: 2}

	manager.handleDiscovery(own, "10.0.0.1")
	manager.handleDiscovery(peer, "10.0.0.2")
	manager.handleDiscovery(peer, "10.0.0.2")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Peer was not registered")
	}

	select {
	case <-done:
		t.Fatal("Peer or own announcement registered twice")
	case <-time.After(50 * time.Millisecond):
	}

	mutex.Lock()
	if len(registered) != 1 || registered["10.0.0.2:2"] != peer {
		t.Fatalf("Unexpected registrations: %v", registered)
	}
	mutex.Unlock()

	manager.Forget("10.0.0.2:2")
	manager.handleDiscovery(peer, "10.0.0.2")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forgotten peer was not registered again")
	}
}
