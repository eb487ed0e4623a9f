package store

import "fmt"

type CorruptRecordError string

func NewCorruptRecordError(reason string) *CorruptRecordError {
	err := CorruptRecordError(reason)
	return &err
}

func (err *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt journal record: %s", string(*err))
}

type ChecksumMismatchError struct {
	id       string
	expected uint16
	actual   uint16
}

func NewChecksumMismatchError(id string, expected, actual uint16) *ChecksumMismatchError {
	return &ChecksumMismatchError{id: id, expected: expected, actual: actual}
}

func (err *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("record %s: checksum %#04x, expected %#04x", err.id, err.actual, err.expected)
}
