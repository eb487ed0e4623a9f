package application_agent

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type IDAlreadyRegisteredError struct {
	subscriber string
}

func NewIDAlreadyRegisteredError(subscriber string) *IDAlreadyRegisteredError {
	err := IDAlreadyRegisteredError{
		subscriber: subscriber,
	}
	return &err
}

func (err *IDAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("ID has already been registered: %v", err.subscriber)
}

type NoSuchIDError struct {
	subscriber string
}

func NewNoSuchIDError(subscriber string) *NoSuchIDError {
	err := NoSuchIDError{
		subscriber: subscriber,
	}
	return &err
}

func (err *NoSuchIDError) Error() string {
	return fmt.Sprintf("No such ID has been registered: %v", err.subscriber)
}

// MailboxBank holds one Mailbox per subscribed client.
type MailboxBank struct {
	rwMutex sync.RWMutex

	mailboxes map[string]*Mailbox
}

func NewMailboxBank() *MailboxBank {
	bank := MailboxBank{
		mailboxes: make(map[string]*Mailbox),
	}
	return &bank
}

func (bank *MailboxBank) Register(subscriber string, capacity int) error {
	bank.rwMutex.Lock()
	defer bank.rwMutex.Unlock()

	if _, ok := bank.mailboxes[subscriber]; ok {
		return NewIDAlreadyRegisteredError(subscriber)
	}

	bank.mailboxes[subscriber] = NewMailbox(capacity)

	return nil
}

func (bank *MailboxBank) Unregister(subscriber string) error {
	bank.rwMutex.Lock()
	defer bank.rwMutex.Unlock()

	if _, ok := bank.mailboxes[subscriber]; !ok {
		return NewNoSuchIDError(subscriber)
	}

	delete(bank.mailboxes, subscriber)

	return nil
}

func (bank *MailboxBank) RegisteredIDs() []string {
	bank.rwMutex.RLock()
	defer bank.rwMutex.RUnlock()

	subscribers := make([]string, 0, len(bank.mailboxes))
	for subscriber := range bank.mailboxes {
		subscribers = append(subscribers, subscriber)
	}
	sort.Strings(subscribers)
	return subscribers
}

func (bank *MailboxBank) GetMailbox(subscriber string) (*Mailbox, error) {
	bank.rwMutex.RLock()
	defer bank.rwMutex.RUnlock()

	mailbox, ok := bank.mailboxes[subscriber]
	if !ok {
		return nil, NewNoSuchIDError(subscriber)
	}

	return mailbox, nil
}

// Deliver puts a copy of msg into every mailbox and returns how many there were.
func (bank *MailboxBank) Deliver(msg ReceivedError) int {
	bank.rwMutex.RLock()
	defer bank.rwMutex.RUnlock()

	if msg.Received.IsZero() {
		msg.Received = time.Now()
	}
	for _, mailbox := range bank.mailboxes {
		mailbox.Deliver(msg)
	}
	return len(bank.mailboxes)
}

// GC runs garbage collection on every mailbox.
func (bank *MailboxBank) GC(cutoff time.Time) {
	bank.rwMutex.RLock()
	defer bank.rwMutex.RUnlock()

	for _, mailbox := range bank.mailboxes {
		mailbox.GC(cutoff)
	}
}
