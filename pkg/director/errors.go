package director

import (
	"fmt"

	"github.com/dtn7/bmfbus/pkg/eif"
)

type NoSuchPortError uint32

func NewNoSuchPortError(port uint32) *NoSuchPortError {
	err := NoSuchPortError(port)
	return &err
}

func (err *NoSuchPortError) Error() string {
	return fmt.Sprintf("no interface on port %d", uint32(*err))
}

type NoHandlerError struct {
	connection eif.ConnectionType
	encoding   eif.Encoding
}

func NewNoHandlerError(connection eif.ConnectionType, encoding eif.Encoding) *NoHandlerError {
	return &NoHandlerError{connection: connection, encoding: encoding}
}

func (err *NoHandlerError) Error() string {
	return fmt.Sprintf("no handler for %v/%v", err.connection, err.encoding)
}
