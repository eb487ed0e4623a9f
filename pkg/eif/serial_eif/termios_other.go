// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux

package serial_eif

import (
	"fmt"
	"os"
	"runtime"
)

func baudFlag(baud int) (uint32, error) {
	return 0, NewUnsupportedBaudError(baud)
}

func openDevice(path string, _ int) (*os.File, error) {
	return nil, fmt.Errorf("serial devices are not supported on %s: %s", runtime.GOOS, path)
}
