// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

package serial_eif

import (
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

func baudFlag(baud int) (uint32, error) {
	flag, ok := baudRates[baud]
	if !ok {
		return 0, NewUnsupportedBaudError(baud)
	}
	return flag, nil
}

// makeRaw configures t like cfmakeraw(3) at the given speed.
func makeRaw(t *unix.Termios, speed uint32) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}

func openDevice(path string, baud int) (*os.File, error) {
	speed, err := baudFlag(baud)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		_ = unix.Close(fd)
		return nil, &os.PathError{Op: "tcgetattr", Path: path, Err: err}
	}

	makeRaw(termios, speed)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		_ = unix.Close(fd)
		return nil, &os.PathError{Op: "tcsetattr", Path: path, Err: err}
	}

	// nonblocking descriptors are driven by the runtime poller
	return os.NewFile(uintptr(fd), path), nil
}
