// SPDX-License-Identifier: GPL-3.0-or-later

package bmf

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSegment is returned when a decoder hits the end of the message.
	ErrMissingSegment = errors.New("bmf: missing segment")
	// ErrEmptySegment is returned when a value was expected but the empty marker was found.
	ErrEmptySegment = errors.New("bmf: unexpected empty segment")
	// ErrTruncated is returned when a run is not terminated before the data ends.
	ErrTruncated = errors.New("bmf: truncated segment")
	// ErrOverflow is returned when an unsigned run exceeds 64 bits.
	ErrOverflow = errors.New("bmf: unsigned value overflows")
	// ErrMissingNul is returned when a string run lacks its NUL terminator.
	ErrMissingNul = errors.New("bmf: string without terminator")
	// ErrEmbeddedNul is returned when a string contains a NUL byte.
	ErrEmbeddedNul = errors.New("bmf: string with embedded NUL")
)

// NotBooleanError is returned when a boolean segment holds neither 0 nor 1.
type NotBooleanError uint64

func NewNotBooleanError(value uint64) *NotBooleanError {
	err := NotBooleanError(value)
	return &err
}

func (err *NotBooleanError) Error() string {
	return fmt.Sprintf("bmf: %d is not a boolean", uint64(*err))
}
