package application_agent

import (
	"fmt"
)

type AgentAlreadyRegisteredError string

func NewAgentAlreadyRegisteredError(name string) *AgentAlreadyRegisteredError {
	err := AgentAlreadyRegisteredError(name)
	return &err
}

func (err *AgentAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("Agent has already been registered: %v", string(*err))
}

type NoSuchAgentError string

func NewNoSuchAgentError(name string) *NoSuchAgentError {
	err := NoSuchAgentError(name)
	return &err
}

func (err *NoSuchAgentError) Error() string {
	return fmt.Sprintf("No such agent registered: %v", string(*err))
}

type NoSuchMessageError uint64

func NewNoSuchMessageError(seq uint64) *NoSuchMessageError {
	err := NoSuchMessageError(seq)
	return &err
}

func (err *NoSuchMessageError) Error() string {
	return fmt.Sprintf("No message with sequence number %v in mailbox", uint64(*err))
}
