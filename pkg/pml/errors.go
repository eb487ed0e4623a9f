package pml

import "fmt"

type MalformedMessageError string

func NewMalformedMessageError(reason string) *MalformedMessageError {
	err := MalformedMessageError(reason)
	return &err
}

func (err *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed PML message: %s", string(*err))
}
