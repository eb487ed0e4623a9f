// Package processing hosts the Core, the single logical thread owning the bus.
//
// The director, the registry and every manager are not safe for concurrent use.
// Other goroutines, such as the REST agent, discovery or listening sockets, hand
// closures to the Core which runs them one after another.
package processing

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/director"
	"github.com/dtn7/bmfbus/pkg/message"
	"github.com/dtn7/bmfbus/pkg/messages"
	"github.com/dtn7/bmfbus/pkg/store"
)

const taskQueueLength = 64

type Core struct {
	Director *director.Director
	Registry *message.Registry
	Builtins *messages.Builtins
	Node     *messages.BusNode
	Journal  *store.Store

	tasks    chan func(*Core)
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewCore builds a bus with the built-in message types registered. journal may be nil.
// The Core's goroutine is started by Start.
func NewCore(numberType string, journal *store.Store) *Core {
	dir := director.NewDirector()
	registry := message.NewRegistry(dir)

	node := &messages.BusNode{Director: dir, Numbers: numberType}
	if journal != nil {
		node.Capacity = journal.Capacity()
		registry.SetJournal(journal)
	}

	return &Core{
		Director: dir,
		Registry: registry,
		Builtins: messages.RegisterBuiltins(registry, node),
		Node:     node,
		Journal:  journal,
		tasks:    make(chan func(*Core), taskQueueLength),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the Core's goroutine.
func (core *Core) Start() {
	go core.run()
}

func (core *Core) run() {
	defer close(core.done)
	for {
		select {
		case task := <-core.tasks:
			task(core)
		case <-core.stop:
			log.Debug("Core stopping")
			return
		}
	}
}

// Do runs task on the Core's goroutine and waits for it to finish.
// Calling Do from within a task deadlocks.
func (core *Core) Do(task func(*Core)) error {
	if core.stopped() {
		return NewStoppedError()
	}

	finished := make(chan struct{})
	wrapped := func(c *Core) {
		defer close(finished)
		task(c)
	}

	select {
	case core.tasks <- wrapped:
	case <-core.done:
		return NewStoppedError()
	}

	select {
	case <-finished:
		return nil
	case <-core.done:
		return NewStoppedError()
	}
}

// Submit queues task without waiting. It returns false if the Core has stopped.
func (core *Core) Submit(task func(*Core)) bool {
	if core.stopped() {
		return false
	}

	select {
	case core.tasks <- task:
		return true
	case <-core.done:
		return false
	}
}

func (core *Core) stopped() bool {
	select {
	case <-core.done:
		return true
	default:
		return false
	}
}

// Tick runs one sweep of the director's main loop. It returns whether any
// interface is still live.
func (core *Core) Tick() (live bool, err error) {
	err = core.Do(func(c *Core) {
		live = c.Director.MainLoop(c.Registry)
	})
	return
}

// Stop closes every interface and ends the Core's goroutine. The journal is
// left open; it belongs to whoever opened it.
func (core *Core) Stop() (err error) {
	core.stopOnce.Do(func() {
		if doErr := core.Do(func(c *Core) {
			err = c.Director.Shutdown()
		}); doErr != nil {
			err = doErr
		}
		close(core.stop)
		<-core.done
	})
	return
}
