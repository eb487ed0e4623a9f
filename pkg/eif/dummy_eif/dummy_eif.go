// Package dummy_eif provides in-memory channel pairs. Only used for testing.
package dummy_eif

import (
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
)

type link struct {
	mutex  sync.Mutex
	queues [2][]byte
	closed [2]bool
}

// Pipe is one end of an in-memory link. Bytes written to one end are polled from the other.
type Pipe struct {
	link    *link
	side    int
	address string
}

// NewPipePair creates two connected ends.
func NewPipePair(addressA, addressB string) (*Pipe, *Pipe) {
	shared := &link{}
	return &Pipe{link: shared, side: 0, address: addressA}, &Pipe{link: shared, side: 1, address: addressB}
}

func (pipe *Pipe) Address() string {
	return fmt.Sprintf("dummy://%v", pipe.address)
}

func (pipe *Pipe) Poll(p []byte) (int, error) {
	pipe.link.mutex.Lock()
	defer pipe.link.mutex.Unlock()

	queue := pipe.link.queues[pipe.side]
	if len(queue) == 0 {
		if pipe.link.closed[pipe.side] || pipe.link.closed[1-pipe.side] {
			return 0, io.EOF
		}
		return 0, nil
	}

	n := copy(p, queue)
	pipe.link.queues[pipe.side] = queue[n:]
	return n, nil
}

func (pipe *Pipe) Write(p []byte) (int, error) {
	pipe.link.mutex.Lock()
	defer pipe.link.mutex.Unlock()

	if pipe.link.closed[pipe.side] || pipe.link.closed[1-pipe.side] {
		return 0, eif.NewClosedError(pipe.Address())
	}
	pipe.link.queues[1-pipe.side] = append(pipe.link.queues[1-pipe.side], p...)
	return len(p), nil
}

// Drain returns and removes everything the peer wrote to this end so far.
func (pipe *Pipe) Drain() []byte {
	pipe.link.mutex.Lock()
	defer pipe.link.mutex.Unlock()
	data := pipe.link.queues[pipe.side]
	pipe.link.queues[pipe.side] = nil
	return data
}

func (pipe *Pipe) Close() error {
	pipe.link.mutex.Lock()
	defer pipe.link.mutex.Unlock()
	pipe.link.closed[pipe.side] = true
	return nil
}

// Handler creates dummy Interfaces and keeps the far end of every pipe, keyed by address.
type Handler struct {
	encoding eif.Encoding

	mutex sync.Mutex
	peers map[string]*Pipe
}

func NewHandler(encoding eif.Encoding) *Handler {
	return &Handler{encoding: encoding, peers: make(map[string]*Pipe)}
}

func (handler *Handler) Connection() eif.ConnectionType {
	return eif.Dummy
}

func (handler *Handler) Encoding() eif.Encoding {
	return handler.encoding
}

func (handler *Handler) Open(spec eif.Spec) ([]*eif.Interface, error) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()

	if _, ok := handler.peers[spec.Address]; ok {
		return nil, fmt.Errorf("dummy address %v already in use", spec.Address)
	}

	near, far := NewPipePair(spec.Address, spec.Address+"/peer")
	handler.peers[spec.Address] = far

	log.WithFields(log.Fields{
		"address":  spec.Address,
		"encoding": handler.encoding,
	}).Debug("Opened dummy interface")

	return []*eif.Interface{NewInterface(handler.encoding, near, spec.Options()...)}, nil
}

// Peer returns the far end of the pipe opened under address.
func (handler *Handler) Peer(address string) (*Pipe, bool) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	pipe, ok := handler.peers[address]
	return pipe, ok
}

// NewInterface wraps pipe in an Interface of the given encoding.
func NewInterface(encoding eif.Encoding, pipe *Pipe, opts ...eif.Option) *eif.Interface {
	return eif.NewInterface(eif.Dummy, encoding, pipe, eif.NewParser(encoding), opts...)
}

// Register adds a BMF and a PML dummy handler and returns them in that order.
func Register(registry eif.HandlerRegistry) (*Handler, *Handler) {
	bmfHandler, pmlHandler := NewHandler(eif.BMF), NewHandler(eif.PML)
	registry.RegisterHandler(bmfHandler)
	registry.RegisterHandler(pmlHandler)
	return bmfHandler, pmlHandler
}
