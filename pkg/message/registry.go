// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/director"
	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/metrics"
	"github.com/dtn7/bmfbus/pkg/pml"
	"github.com/dtn7/bmfbus/pkg/route"
)

// Journal records inbound messages.
type Journal interface {
	Record(port uint32, encoding eif.Encoding, typeName string, payload []byte) error
}

// Registry knows every message type and dispatches inbound messages.
//
// Messages addressed to this node are delivered to their variables. All others are
// forwarded along their route, translated when the outgoing interface speaks the
// other encoding. Every inbound message is copied to the logging ports.
type Registry struct {
	director *director.Director
	journal  Journal

	byCode    map[uint64]TypeManager
	byName    map[string]TypeManager
	variables map[uint32]TypeManager
}

func NewRegistry(dir *director.Director) *Registry {
	return &Registry{
		director:  dir,
		byCode:    make(map[uint64]TypeManager),
		byName:    make(map[string]TypeManager),
		variables: make(map[uint32]TypeManager),
	}
}

func (registry *Registry) Director() *director.Director {
	return registry.director
}

// SetJournal attaches a journal; nil detaches it.
func (registry *Registry) SetJournal(journal Journal) {
	registry.journal = journal
}

// Register adds a message type. Reusing a name or code panics.
func (registry *Registry) Register(manager TypeManager) {
	if _, ok := registry.byCode[manager.Code()]; ok {
		log.WithField("code", manager.Code()).Panic("Message type code registered twice")
	}
	if _, ok := registry.byName[manager.Name()]; ok {
		log.WithField("type", manager.Name()).Panic("Message type name registered twice")
	}

	for _, id := range manager.VariableIDs() {
		if owner, ok := registry.variables[id]; ok {
			log.WithFields(log.Fields{
				"variable": id,
				"type":     manager.Name(),
				"owner":    owner.Name(),
			}).Panic("Variable ID registered twice")
		}
		registry.variables[id] = manager
	}

	registry.byCode[manager.Code()] = manager
	registry.byName[manager.Name()] = manager
	manager.attach(registry)

	log.WithFields(log.Fields{
		"type": manager.Name(),
		"code": manager.Code(),
	}).Debug("Registered message type")
}

func (registry *Registry) claimVariable(id uint32, manager TypeManager) error {
	if _, ok := registry.variables[id]; ok {
		return NewDuplicateVariableError(id)
	}
	registry.variables[id] = manager
	return nil
}

func (registry *Registry) releaseVariable(id uint32) {
	delete(registry.variables, id)
}

func (registry *Registry) Lookup(name string) (TypeManager, bool) {
	manager, ok := registry.byName[name]
	return manager, ok
}

func (registry *Registry) LookupCode(code uint64) (TypeManager, bool) {
	manager, ok := registry.byCode[code]
	return manager, ok
}

// VariableOwner returns the type handling the variable with the given ID.
func (registry *Registry) VariableOwner(id uint32) (TypeManager, bool) {
	manager, ok := registry.variables[id]
	return manager, ok
}

// Types describes every registered type ordered by code.
func (registry *Registry) Types() []Description {
	codes := make([]uint64, 0, len(registry.byCode))
	for code := range registry.byCode {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	descriptions := make([]Description, 0, len(codes))
	for _, code := range codes {
		descriptions = append(descriptions, registry.byCode[code].Describe())
	}
	return descriptions
}

func (registry *Registry) record(port uint32, encoding eif.Encoding, typeName string, payload []byte) {
	if registry.journal == nil {
		return
	}
	if err := registry.journal.Record(port, encoding, typeName, payload); err != nil {
		log.WithFields(log.Fields{
			"port":  port,
			"type":  typeName,
			"error": err,
		}).Error("Journaling message failed")
	}
}

// DispatchBMF handles one inbound BMF message received on port.
func (registry *Registry) DispatchBMF(port uint32, msg []byte) {
	cur := bmf.NewCursor(msg)
	header, err := ReadHeader(cur)
	if err != nil {
		log.WithFields(log.Fields{
			"port":  port,
			"error": err,
		}).Warn("Dropping BMF message with malformed header")
		metrics.Unknown.WithLabelValues(eif.BMF.String()).Inc()
		return
	}

	manager, known := registry.byCode[header.TypeCode]
	typeName := "unknown"
	if known {
		typeName = manager.Name()
	} else {
		metrics.Unknown.WithLabelValues(eif.BMF.String()).Inc()
	}

	log.WithFields(log.Fields{
		"port":   port,
		"type":   typeName,
		"target": header.Target(),
	}).Debug("Received BMF message")

	registry.record(port, eif.BMF, typeName, msg)

	for _, loggingPort := range registry.director.LoggingPorts() {
		if loggingPort == port {
			continue
		}
		iface := registry.director.GetInterface(loggingPort)
		if !iface.IsPMLNotBMF() {
			registry.sendRaw(iface, func() error { return iface.SendBMF(msg) })
		} else if known {
			manager.TranslateBMF(loggingPort, header.Target(), cur.Clone(), header.Intelligent)
		}
	}

	if header.Arrived() {
		if !known {
			log.WithFields(log.Fields{
				"port": port,
				"code": header.TypeCode,
			}).Warn("Dropping message of unknown type")
			return
		}
		manager.DeliverBMF(header.VariableID, route.NewArrived(port), cur, header.Intelligent)
		return
	}

	target, iface, ok := registry.nextHop(port, header.Target())
	if !ok {
		return
	}

	if !iface.IsPMLNotBMF() {
		onward := header
		onward.Route = target.Route
		data, err := Rewrite(onward, cur)
		if err == nil {
			err = iface.SendBMF(data)
		}
		registry.countForward(typeName, port, target, err)
	} else if known {
		manager.TranslateBMF(target.Port, target, cur, header.Intelligent)
	} else {
		log.WithFields(log.Fields{
			"port": port,
			"code": header.TypeCode,
		}).Warn("Cannot translate message of unknown type")
	}
}

// DispatchPML handles one inbound PML message received on port.
func (registry *Registry) DispatchPML(port uint32, msg *pml.Message) {
	manager, known := registry.byName[msg.Type]
	if !known {
		metrics.Unknown.WithLabelValues(eif.PML.String()).Inc()
	}

	header := route.Target{Broadcast: msg.Broadcast, Route: msg.Route.Clone(), VariableID: msg.VariableID}
	log.WithFields(log.Fields{
		"port":   port,
		"type":   msg.Type,
		"target": header,
	}).Debug("Received PML message")

	if registry.journal != nil {
		if data, err := pml.Marshal(msg); err == nil {
			registry.record(port, eif.PML, msg.Type, data)
		}
	}

	for _, loggingPort := range registry.director.LoggingPorts() {
		if loggingPort == port {
			continue
		}
		iface := registry.director.GetInterface(loggingPort)
		if iface.IsPMLNotBMF() {
			registry.sendRaw(iface, func() error { return iface.SendPML(msg) })
		} else if known {
			manager.TranslatePML(loggingPort, header, msg, msg.Intelligent)
		}
	}

	if msg.Broadcast || msg.Route.Arrived() {
		if !known {
			log.WithFields(log.Fields{
				"port": port,
				"type": msg.Type,
			}).Warn("Dropping message of unknown type")
			return
		}
		manager.DeliverPML(msg.VariableID, route.NewArrived(port), msg.Clone(), msg.Intelligent)
		return
	}

	target, iface, ok := registry.nextHop(port, header)
	if !ok {
		return
	}

	if iface.IsPMLNotBMF() {
		onward := msg.Clone()
		onward.Route = target.Route
		registry.countForward(msg.Type, port, target, iface.SendPML(onward))
	} else if known {
		manager.TranslatePML(target.Port, target, msg, msg.Intelligent)
	} else {
		log.WithFields(log.Fields{
			"port": port,
			"type": msg.Type,
		}).Warn("Cannot translate message of unknown type")
	}
}

// nextHop resolves the first hop of an inbound message which is not addressed to
// this node. Sending a message back where it came from is refused.
func (registry *Registry) nextHop(port uint32, target route.Target) (route.Target, *eif.Interface, bool) {
	resolved, err := target.Resolve()
	if err == nil && resolved.Port == port {
		err = NewLoopError(port)
	}
	var iface *eif.Interface
	if err == nil {
		iface, err = registry.director.LookupInterface(resolved.Port)
	}

	if err != nil {
		log.WithFields(log.Fields{
			"port":   port,
			"target": target,
			"error":  err,
		}).Warn("Cannot forward message")
		return resolved, nil, false
	}
	return resolved, iface, true
}

func (registry *Registry) countForward(typeName string, port uint32, target route.Target, err error) {
	if err != nil {
		log.WithFields(log.Fields{
			"port":   port,
			"target": target,
			"error":  err,
		}).Warn("Forwarding message failed")
		metrics.CountMessage(typeName, metrics.Dropped)
		return
	}
	metrics.CountMessage(typeName, metrics.Forwarded)
}

func (registry *Registry) sendRaw(iface *eif.Interface, send func() error) {
	if err := send(); err != nil {
		log.WithFields(log.Fields{
			"interface": iface,
			"error":     err,
		}).Debug("Copy to logging port failed")
	}
}
