package serial_eif

import "fmt"

type UnsupportedBaudError int

func NewUnsupportedBaudError(baud int) *UnsupportedBaudError {
	err := UnsupportedBaudError(baud)
	return &err
}

func (err *UnsupportedBaudError) Error() string {
	return fmt.Sprintf("unsupported baud rate: %d", int(*err))
}
