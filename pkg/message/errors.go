package message

import (
	"fmt"
)

type MalformedHeaderError struct {
	part  string
	cause error
}

func NewMalformedHeaderError(part string, cause error) *MalformedHeaderError {
	return &MalformedHeaderError{part: part, cause: cause}
}

func (err *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed message header (%s): %v", err.part, err.cause)
}

func (err *MalformedHeaderError) Unwrap() error {
	return err.cause
}

// FieldError reports a field which is missing or could not be decoded.
type FieldError struct {
	typeName string
	field    string
	cause    error
}

func NewFieldError(typeName, field string, cause error) *FieldError {
	return &FieldError{typeName: typeName, field: field, cause: cause}
}

func (err *FieldError) Error() string {
	if err.cause == nil {
		return fmt.Sprintf("%s: field %s missing", err.typeName, err.field)
	}
	return fmt.Sprintf("%s: field %s: %v", err.typeName, err.field, err.cause)
}

func (err *FieldError) Unwrap() error {
	return err.cause
}

type IntelligenceMismatchError string

func NewIntelligenceMismatchError(reason string) *IntelligenceMismatchError {
	err := IntelligenceMismatchError(reason)
	return &err
}

func (err *IntelligenceMismatchError) Error() string {
	return fmt.Sprintf("self-description does not match: %s", string(*err))
}

type NotRegisteredError string

func NewNotRegisteredError(typeName string) *NotRegisteredError {
	err := NotRegisteredError(typeName)
	return &err
}

func (err *NotRegisteredError) Error() string {
	return fmt.Sprintf("message type %s is not registered", string(*err))
}

type DuplicateVariableError uint32

func NewDuplicateVariableError(id uint32) *DuplicateVariableError {
	err := DuplicateVariableError(id)
	return &err
}

func (err *DuplicateVariableError) Error() string {
	if uint32(*err) == 0 {
		return "variable ID 0 is reserved"
	}
	return fmt.Sprintf("variable ID %d already in use", uint32(*err))
}

type NoSuchVariableError uint32

func NewNoSuchVariableError(id uint32) *NoSuchVariableError {
	err := NoSuchVariableError(id)
	return &err
}

func (err *NoSuchVariableError) Error() string {
	return fmt.Sprintf("no variable with ID %d", uint32(*err))
}

type LoopError uint32

func NewLoopError(port uint32) *LoopError {
	err := LoopError(port)
	return &err
}

func (err *LoopError) Error() string {
	return fmt.Sprintf("route leads back to arrival port %d", uint32(*err))
}
