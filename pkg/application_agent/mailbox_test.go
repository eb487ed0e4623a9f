package application_agent

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/dtn7/bmfbus/pkg/messages"
	"github.com/dtn7/bmfbus/pkg/route"
)

func generateReceivedError(t *rapid.T, label string) ReceivedError {
	return ReceivedError{
		Source: route.NewArrived(rapid.Uint32Range(0, 64).Draw(t, label+" port")),
		Error: messages.Error{
			Priority: rapid.Uint64Range(0, 10).Draw(t, label+" priority"),
			ErrorID:  rapid.Uint64().Draw(t, label+" error id"),
			Text:     rapid.StringMatching(`[a-z ]{0,32}`).Draw(t, label+" text"),
		},
		Received: time.Unix(rapid.Int64Range(0, 1<<32).Draw(t, label+" received"), 0),
	}
}

func TestMailbox_Deliver(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		mailbox := NewMailbox(0)
		msg := generateReceivedError(tr, "message")

		seq := mailbox.Deliver(msg)
		if seq != 1 {
			tr.Fatalf("First message got sequence number %v", seq)
		}

		entry, ok := mailbox.messages[seq]
		if !ok {
			tr.Fatal("Delivered message not in messages-dict")
		}
		if entry.retrieved {
			tr.Fatal("Unretrieved message marked as retrieved")
		}
	})
}

func TestMailbox_Get(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		mailbox := NewMailbox(0)

		nMessages := rapid.IntRange(1, 32).Draw(tr, "Drawing number of test messages")
		for i := 0; i < nMessages; i++ {
			msg := generateReceivedError(tr, fmt.Sprintf("message %v", i))
			seq := mailbox.Deliver(msg)

			retrieved, err := mailbox.Get(seq, false)
			if err != nil {
				tr.Fatal(err)
			}
			if !reflect.DeepEqual(msg, retrieved) {
				tr.Fatal("Retrieved message was not the same")
			}

			if _, ok := mailbox.messages[seq]; !ok {
				tr.Fatal("Message erroneously removed")
			}
			if !mailbox.messages[seq].retrieved {
				tr.Fatal("Retrieved message not marked as retrieved")
			}

			if _, err := mailbox.Get(seq, true); err != nil {
				tr.Fatal(err)
			}
			if _, ok := mailbox.messages[seq]; ok {
				tr.Fatal("Message should have been removed")
			}
			if _, err := mailbox.Get(seq, false); err == nil {
				tr.Fatal("Removed message still retrievable")
			}
		}
	})
}

func TestMailbox_All(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		mailbox := NewMailbox(0)

		nMessages := rapid.IntRange(2, 64).Draw(tr, "Drawing number of test messages")
		msgs := make([]ReceivedError, 0, nMessages)
		for i := 0; i < nMessages; i++ {
			msgs = append(msgs, generateReceivedError(tr, fmt.Sprintf("message %v", i)))
		}

		setA := msgs[0 : nMessages/2]
		setB := msgs[nMessages/2:]

		for _, msg := range setA {
			mailbox.Deliver(msg)
		}

		list := mailbox.List()
		if len(setA) != len(list) {
			tr.Fatalf("List returned wrong number of ids, expected: %v, got: %v", len(setA), len(list))
		}

		get := mailbox.GetAll(true)
		if !reflect.DeepEqual(setA, get) {
			tr.Fatalf("GetAll returned %v, expected %v", get, setA)
		}

		list = mailbox.List()
		if len(list) > 0 {
			tr.Fatalf("List should return empty slice, returned %v", list)
		}

		for _, msg := range setB {
			mailbox.Deliver(msg)
		}

		get = mailbox.GetAll(false)
		if !reflect.DeepEqual(setB, get) {
			tr.Fatalf("GetAll returned %v, expected %v", get, setB)
		}

		if len(mailbox.ListNew()) != 0 {
			tr.Fatal("Retrieved messages still listed as new")
		}
		if len(mailbox.GetNew(false)) != 0 {
			tr.Fatal("GetNew returned retrieved messages")
		}

		list = mailbox.List()
		if len(setB) != len(list) {
			tr.Fatalf("List returned wrong number of ids, expected: %v, got: %v", len(setB), len(list))
		}
	})
}

func TestMailbox_Capacity(t *testing.T) {
	rapid.Check(t, func(tr *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(tr, "capacity")
		mailbox := NewMailbox(capacity)

		nMessages := rapid.IntRange(1, 48).Draw(tr, "Drawing number of test messages")
		for i := 0; i < nMessages; i++ {
			mailbox.Deliver(generateReceivedError(tr, fmt.Sprintf("message %v", i)))
		}

		expected := nMessages
		if expected > capacity {
			expected = capacity
		}
		list := mailbox.List()
		if len(list) != expected {
			tr.Fatalf("Mailbox holds %v messages, expected %v", len(list), expected)
		}
		if list[len(list)-1] != uint64(nMessages) {
			tr.Fatalf("Newest message has sequence number %v, expected %v", list[len(list)-1], nMessages)
		}
	})
}

func TestMailbox_GC(t *testing.T) {
	mailbox := NewMailbox(0)
	old := ReceivedError{Received: time.Unix(100, 0)}
	fresh := ReceivedError{Received: time.Unix(300, 0)}

	oldSeq := mailbox.Deliver(old)
	unreadSeq := mailbox.Deliver(old)
	freshSeq := mailbox.Deliver(fresh)
	if _, err := mailbox.Get(oldSeq, false); err != nil {
		t.Fatal(err)
	}
	if _, err := mailbox.Get(freshSeq, false); err != nil {
		t.Fatal(err)
	}

	mailbox.GC(time.Unix(200, 0))

	if !reflect.DeepEqual([]uint64{unreadSeq, freshSeq}, mailbox.List()) {
		t.Fatalf("GC left %v", mailbox.List())
	}
}
