package processing

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
)

// Adopt registers an interface created outside the Core's goroutine, e.g. an
// accepted connection. Its Spec.Adopt hook should point here.
func (core *Core) Adopt(iface *eif.Interface) {
	if !core.Submit(func(c *Core) {
		port := c.Director.AddInterface(iface)
		log.WithFields(log.Fields{
			"interface": iface,
			"port":      port,
		}).Info("Adopted new interface")
	}) {
		log.WithField("interface", iface).Warn("Core stopped, closing adopted interface")
		_ = iface.Close()
	}
}

// Open opens interfaces through the director on the Core's goroutine.
// Interfaces accepted later are adopted via Adopt.
func (core *Core) Open(connection eif.ConnectionType, encoding eif.Encoding, spec eif.Spec) (ports []uint32, err error) {
	if spec.Adopt == nil {
		spec.Adopt = core.Adopt
	}
	doErr := core.Do(func(c *Core) {
		ports, err = c.Director.Open(connection, encoding, spec)
	})
	if doErr != nil {
		err = doErr
	}
	return
}

// RegisterHandler registers a handler on the Core's goroutine.
func (core *Core) RegisterHandler(handler eif.Handler) {
	if err := core.Do(func(c *Core) {
		c.Director.RegisterHandler(handler)
	}); err != nil {
		log.WithFields(log.Fields{
			"handler": handler.Connection(),
			"error":   err,
		}).Error("Registering handler failed")
	}
}
