// SPDX-License-Identifier: GPL-3.0-or-later

package unix_agent

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxFrameLength bounds a single message on the socket.
const maxFrameLength = 1 << 20

// WriteFrame sends v as msgpack, prefixed with its 8-byte big-endian length.
func WriteFrame(w *bufio.Writer, v any) error {
	msgBytes, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	msgLenBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(msgLenBytes, uint64(len(msgBytes)))
	if _, err := w.Write(msgLenBytes); err != nil {
		return err
	}
	if _, err := w.Write(msgBytes); err != nil {
		return err
	}
	return w.Flush()
}

// ReadFrame reads one length-prefixed message.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	msgLenBytes := make([]byte, 8)
	if _, err := io.ReadFull(r, msgLenBytes); err != nil {
		return nil, err
	}

	msgLen := binary.BigEndian.Uint64(msgLenBytes)
	if msgLen > maxFrameLength {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", msgLen)
	}

	msgBytes := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msgBytes); err != nil {
		return nil, err
	}
	return msgBytes, nil
}

// Roundtrip sends request and decodes the next frame into response.
func Roundtrip(r *bufio.Reader, w *bufio.Writer, request, response any) error {
	if err := WriteFrame(w, request); err != nil {
		return err
	}
	msgBytes, err := ReadFrame(r)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(msgBytes, response)
}
