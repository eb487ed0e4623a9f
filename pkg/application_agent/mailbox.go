// SPDX-FileCopyrightText: 2025 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package application_agent

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/messages"
	"github.com/dtn7/bmfbus/pkg/route"
)

// DefaultMailboxCapacity bounds the messages a mailbox keeps before dropping the oldest.
const DefaultMailboxCapacity = 256

// ReceivedError is an Error message which arrived at this node.
type ReceivedError struct {
	Source   route.Target
	Error    messages.Error
	Received time.Time
}

type mailboxEntry struct {
	message   ReceivedError
	retrieved bool
}

// Mailbox keeps received Error messages for one client until it fetches them.
// Messages are numbered in delivery order, starting at 1.
type Mailbox struct {
	rwMutex sync.RWMutex

	capacity int
	nextSeq  uint64
	messages map[uint64]*mailboxEntry
}

func NewMailbox(capacity int) *Mailbox {
	if capacity < 1 {
		capacity = DefaultMailboxCapacity
	}
	mailbox := Mailbox{
		capacity: capacity,
		nextSeq:  1,
		messages: make(map[uint64]*mailboxEntry),
	}
	return &mailbox
}

// Deliver stores msg and returns its sequence number.
// A full mailbox drops its oldest message first.
func (mailbox *Mailbox) Deliver(msg ReceivedError) uint64 {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	if len(mailbox.messages) >= mailbox.capacity {
		oldest := mailbox.sortedLocked()[0]
		delete(mailbox.messages, oldest)
		log.WithField("seq", oldest).Debug("Mailbox full, dropped oldest message")
	}

	seq := mailbox.nextSeq
	mailbox.nextSeq++
	mailbox.messages[seq] = &mailboxEntry{message: msg}
	return seq
}

func (mailbox *Mailbox) sortedLocked() []uint64 {
	seqs := make([]uint64, 0, len(mailbox.messages))
	for seq := range mailbox.messages {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

// List returns the sequence numbers of all stored messages in delivery order.
func (mailbox *Mailbox) List() []uint64 {
	mailbox.rwMutex.RLock()
	defer mailbox.rwMutex.RUnlock()

	return mailbox.sortedLocked()
}

// ListNew returns the sequence numbers of all messages which have not been retrieved before.
func (mailbox *Mailbox) ListNew() []uint64 {
	mailbox.rwMutex.RLock()
	defer mailbox.rwMutex.RUnlock()

	seqs := make([]uint64, 0, len(mailbox.messages))
	for _, seq := range mailbox.sortedLocked() {
		if !mailbox.messages[seq].retrieved {
			seqs = append(seqs, seq)
		}
	}
	return seqs
}

// Get returns the message with the given sequence number.
// If remove is set, then the message will be deleted from the mailbox.
// Returns NoSuchMessageError if no message with this number is stored.
func (mailbox *Mailbox) Get(seq uint64, remove bool) (ReceivedError, error) {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	entry, ok := mailbox.messages[seq]
	if !ok {
		return ReceivedError{}, NewNoSuchMessageError(seq)
	}

	if remove {
		delete(mailbox.messages, seq)
	} else {
		entry.retrieved = true
	}
	return entry.message, nil
}

// GetAll returns all messages in delivery order.
// If remove is set, then the mailbox will be cleared.
func (mailbox *Mailbox) GetAll(remove bool) []ReceivedError {
	return mailbox.collect(false, remove)
}

// GetNew returns all messages that have not been retrieved before.
// If remove is set, then the returned messages are deleted.
func (mailbox *Mailbox) GetNew(remove bool) []ReceivedError {
	return mailbox.collect(true, remove)
}

func (mailbox *Mailbox) collect(onlyNew, remove bool) []ReceivedError {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	msgs := make([]ReceivedError, 0, len(mailbox.messages))
	for _, seq := range mailbox.sortedLocked() {
		entry := mailbox.messages[seq]
		if onlyNew && entry.retrieved {
			continue
		}

		msgs = append(msgs, entry.message)
		if remove {
			delete(mailbox.messages, seq)
		} else {
			entry.retrieved = true
		}
	}
	return msgs
}

func (mailbox *Mailbox) Delete(seq uint64) {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	delete(mailbox.messages, seq)
}

func (mailbox *Mailbox) Clear() {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	clear(mailbox.messages)
}

func (mailbox *Mailbox) Len() int {
	mailbox.rwMutex.RLock()
	defer mailbox.rwMutex.RUnlock()

	return len(mailbox.messages)
}

// GC removes messages received before cutoff which have already been retrieved.
func (mailbox *Mailbox) GC(cutoff time.Time) {
	mailbox.rwMutex.Lock()
	defer mailbox.rwMutex.Unlock()

	for seq, entry := range mailbox.messages {
		if entry.retrieved && entry.message.Received.Before(cutoff) {
			delete(mailbox.messages, seq)
		}
	}
}
