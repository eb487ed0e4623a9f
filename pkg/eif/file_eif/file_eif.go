// SPDX-License-Identifier: GPL-3.0-or-later

// Package file_eif connects the bus to files, FIFOs and character devices.
//
// Spec.Address is read from and Spec.Peer, if set, is written to; otherwise
// Address serves both directions. A regular file which is read to its end ends the
// Interface. Files opened only for writing are truncated, unless the Interface is
// a logging one, which appends.
package file_eif

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
)

// filePair joins an optional input and output file into one stream.
type filePair struct {
	in  *os.File
	out *os.File

	done      chan struct{}
	closeOnce sync.Once
}

func newFilePair(in, out *os.File) *filePair {
	return &filePair{in: in, out: out, done: make(chan struct{})}
}

func (pair *filePair) Read(p []byte) (int, error) {
	if pair.in == nil {
		<-pair.done
		return 0, io.EOF
	}
	return pair.in.Read(p)
}

func (pair *filePair) Write(p []byte) (int, error) {
	if pair.out == nil {
		return 0, fmt.Errorf("file interface has no output")
	}
	return pair.out.Write(p)
}

func (pair *filePair) Close() (err error) {
	pair.closeOnce.Do(func() {
		close(pair.done)
		for _, f := range []*os.File{pair.in, pair.out} {
			if f == nil {
				continue
			}
			if closeErr := f.Close(); closeErr != nil {
				err = multierror.Append(err, closeErr)
			}
		}
	})
	return
}

func isFIFO(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode()&os.ModeNamedPipe != 0
}

// openInput opens path for reading. FIFOs are opened read-write, so that neither
// opening blocks nor a vanishing writer ends the Interface.
func openInput(path string) (*os.File, error) {
	if isFIFO(path) {
		return os.OpenFile(path, os.O_RDWR, 0)
	}
	return os.Open(path)
}

func openOutput(path string, appendOnly bool) (*os.File, error) {
	if isFIFO(path) {
		return os.OpenFile(path, os.O_RDWR, 0)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendOnly {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return os.OpenFile(path, flags, 0644)
}

type Handler struct {
	encoding eif.Encoding
}

func NewHandler(encoding eif.Encoding) *Handler {
	return &Handler{encoding: encoding}
}

func (handler *Handler) Connection() eif.ConnectionType {
	return eif.File
}

func (handler *Handler) Encoding() eif.Encoding {
	return handler.encoding
}

func (handler *Handler) Open(spec eif.Spec) ([]*eif.Interface, error) {
	if !spec.Read && !spec.Write {
		return nil, fmt.Errorf("file interface %v is neither read nor written", spec.Address)
	}

	var stream io.ReadWriteCloser
	address := fmt.Sprintf("file://%s", spec.Address)

	switch {
	case spec.Read && spec.Write && spec.Peer != "":
		in, err := openInput(spec.Address)
		if err != nil {
			return nil, err
		}
		out, err := openOutput(spec.Peer, spec.Logging)
		if err != nil {
			return nil, multierror.Append(err, in.Close())
		}
		stream = newFilePair(in, out)
		address = fmt.Sprintf("file://%s,%s", spec.Address, spec.Peer)

	case spec.Read && spec.Write:
		f, err := os.OpenFile(spec.Address, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		stream = f

	case spec.Read:
		in, err := openInput(spec.Address)
		if err != nil {
			return nil, err
		}
		stream = newFilePair(in, nil)

	default:
		out, err := openOutput(spec.Address, spec.Logging)
		if err != nil {
			return nil, err
		}
		stream = newFilePair(nil, out)
	}

	log.WithFields(log.Fields{
		"address":  address,
		"encoding": handler.encoding,
		"read":     spec.Read,
		"write":    spec.Write,
	}).Debug("Opened file interface")

	channel := eif.NewStreamChannel(stream, address)
	return []*eif.Interface{eif.NewInterface(eif.File, handler.encoding, channel, eif.NewParser(handler.encoding), spec.Options()...)}, nil
}

// Register adds a BMF and a PML file handler and returns them in that order.
func Register(registry eif.HandlerRegistry) (*Handler, *Handler) {
	bmfHandler, pmlHandler := NewHandler(eif.BMF), NewHandler(eif.PML)
	registry.RegisterHandler(bmfHandler)
	registry.RegisterHandler(pmlHandler)
	return bmfHandler, pmlHandler
}
