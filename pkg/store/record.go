// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/dtn7/cboring"
	"github.com/howeyc/crc16"
)

// Record is the metadata of one journaled message. The message itself lives in
// its own file, see Load.
type Record struct {
	// ID is a sortable xid string. Used as the database primary-key.
	ID       string `badgerhold:"key"`
	Port     uint32 `badgerhold:"index"`
	Encoding string
	Type     string
	Received time.Time
	// Checksum is the CRC-16/CCITT of the payload
	Checksum uint16
	Size     int

	// filename of the serialised message on-disk
	SerialisedFileName string
}

// recordFile is the on-disk form of a journaled message: a CBOR array of
// port, type name and payload.
type recordFile struct {
	port     uint32
	typeName string
	payload  []byte
}

func (file *recordFile) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(file.port), w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(file.typeName, w); err != nil {
		return err
	}
	return cboring.WriteByteString(file.payload, w)
}

func (file *recordFile) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return NewCorruptRecordError("record file array has wrong length")
	}

	port, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	file.port = uint32(port)

	if file.typeName, err = cboring.ReadTextString(r); err != nil {
		return err
	}
	file.payload, err = cboring.ReadByteString(r)
	return err
}

func writeRecordFile(path string, file *recordFile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := cboring.Marshal(file, w); err != nil {
		return err
	}
	return w.Flush()
}

func readRecordFile(path string) (*recordFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file := &recordFile{}
	err = cboring.Unmarshal(file, bufio.NewReader(f))
	return file, err
}

func checksum(payload []byte) uint16 {
	return crc16.ChecksumCCITT(payload)
}
