// SPDX-License-Identifier: GPL-3.0-or-later

package bmf

import (
	log "github.com/sirupsen/logrus"
)

// DefaultMaxMessageSize caps the size of a single message accepted by a Scanner.
const DefaultMaxMessageSize = 1 << 20

// Scanner splits a byte stream into messages.
//
// Input may be fed in arbitrarily sized chunks; a message is emitted once its
// end-of-message marker has been seen at a segment boundary. A stray marker on its
// own is ignored. Messages exceeding the size limit are discarded up to their end.
type Scanner struct {
	current      []byte
	atStart      bool
	overflowed   bool
	maxSize      int
	messages     [][]byte
	DroppedCount uint64
}

// NewScanner creates a Scanner with the given message size limit; zero uses DefaultMaxMessageSize.
func NewScanner(maxSize int) *Scanner {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Scanner{
		current: make([]byte, 0, InitialMessageSize),
		atStart: true,
		maxSize: maxSize,
	}
}

// Feed appends data to the stream.
func (scanner *Scanner) Feed(data []byte) {
	for _, b := range data {
		if scanner.atStart && b == EndOfMessage {
			scanner.finish()
			continue
		}

		if !scanner.overflowed {
			if len(scanner.current) >= scanner.maxSize {
				log.WithField("limit", scanner.maxSize).Warn("BMF message exceeds size limit, discarding")
				scanner.overflowed = true
				scanner.current = scanner.current[:0]
			} else {
				scanner.current = append(scanner.current, b)
			}
		}

		scanner.atStart = b&continuationBit == 0
	}
}

func (scanner *Scanner) finish() {
	if scanner.overflowed {
		scanner.overflowed = false
		scanner.DroppedCount++
		scanner.current = scanner.current[:0]
		return
	}
	if len(scanner.current) == 0 {
		return
	}

	msg := make([]byte, len(scanner.current)+1)
	copy(msg, scanner.current)
	msg[len(msg)-1] = EndOfMessage
	scanner.messages = append(scanner.messages, msg)
	scanner.current = scanner.current[:0]
}

// Next returns the oldest complete message, including its end-of-message marker.
func (scanner *Scanner) Next() ([]byte, bool) {
	if len(scanner.messages) == 0 {
		return nil, false
	}
	msg := scanner.messages[0]
	scanner.messages[0] = nil
	scanner.messages = scanner.messages[1:]
	return msg, true
}

// Pending returns the number of complete messages not yet taken.
func (scanner *Scanner) Pending() int {
	return len(scanner.messages)
}

// Partial reports whether a message is currently half-read.
func (scanner *Scanner) Partial() bool {
	return len(scanner.current) > 0 || scanner.overflowed
}
