package eif

import "fmt"

type UnknownConnectionTypeError string

func NewUnknownConnectionTypeError(name string) *UnknownConnectionTypeError {
	err := UnknownConnectionTypeError(name)
	return &err
}

func (err *UnknownConnectionTypeError) Error() string {
	return fmt.Sprintf("unknown connection type: %q", string(*err))
}

type UnknownEncodingError string

func NewUnknownEncodingError(name string) *UnknownEncodingError {
	err := UnknownEncodingError(name)
	return &err
}

func (err *UnknownEncodingError) Error() string {
	return fmt.Sprintf("unknown encoding: %q", string(*err))
}

type EncodingMismatchError struct {
	expected Encoding
	actual   Encoding
}

func NewEncodingMismatchError(expected, actual Encoding) *EncodingMismatchError {
	return &EncodingMismatchError{expected: expected, actual: actual}
}

func (err *EncodingMismatchError) Error() string {
	return fmt.Sprintf("interface speaks %v, message is %v", err.expected, err.actual)
}

type NotWritableError string

func NewNotWritableError(address string) *NotWritableError {
	err := NotWritableError(address)
	return &err
}

func (err *NotWritableError) Error() string {
	return fmt.Sprintf("interface %v is not writable", string(*err))
}

type ClosedError string

func NewClosedError(address string) *ClosedError {
	err := ClosedError(address)
	return &err
}

func (err *ClosedError) Error() string {
	return fmt.Sprintf("interface %v is closed", string(*err))
}
