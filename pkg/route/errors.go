package route

import "fmt"

type MalformedRouteError string

func NewMalformedRouteError(route string) *MalformedRouteError {
	err := MalformedRouteError(route)
	return &err
}

func (err *MalformedRouteError) Error() string {
	return fmt.Sprintf("malformed route: %q", string(*err))
}

type InvalidTargetError struct {
	target Target
	reason string
}

func NewInvalidTargetError(target Target, reason string) *InvalidTargetError {
	return &InvalidTargetError{target: target, reason: reason}
}

func (err *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target %v: %s", err.target, err.reason)
}
