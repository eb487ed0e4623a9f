// SPDX-License-Identifier: GPL-3.0-or-later

package message

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/metrics"
	"github.com/dtn7/bmfbus/pkg/pml"
	"github.com/dtn7/bmfbus/pkg/route"
)

// TypeManager is the type-independent view of a Manager used by the Registry.
type TypeManager interface {
	Name() string
	Code() uint64
	Describe() Description
	VariableIDs() []uint32

	DeliverBMF(variableID uint32, source route.Target, cur *bmf.Cursor, intel bool) bool
	DeliverPML(variableID uint32, source route.Target, msg *pml.Message, intel bool) bool
	TranslateBMF(port uint32, target route.Target, cur *bmf.Cursor, intel bool) bool
	TranslatePML(port uint32, target route.Target, msg *pml.Message, intel bool) bool

	attach(registry *Registry)
}

// Manager handles one message type with payload P in both encodings.
//
// Decoding is all-or-nothing: every field is read into a fresh payload first and
// variables only see messages which decoded completely.
type Manager[P any] struct {
	name   string
	code   uint64
	fields []Field[P]

	variables map[uint32]Variable[P]
	registry  *Registry
}

// NewManager creates the Manager of a message type. Invalid or duplicate field
// names are programming errors and panic.
func NewManager[P any](name string, code uint64, fields ...Field[P]) *Manager[P] {
	seen := make(map[string]bool, len(fields))
	for _, field := range fields {
		key := fmt.Sprintf("%v:%s", field.Namespaced, field.Name)
		if seen[key] || field.encode == nil {
			log.WithFields(log.Fields{
				"type":  name,
				"field": field.Name,
			}).Panic("Invalid or duplicate field")
		}
		seen[key] = true
	}

	return &Manager[P]{
		name:      name,
		code:      code,
		fields:    fields,
		variables: make(map[uint32]Variable[P]),
	}
}

func (manager *Manager[P]) Name() string {
	return manager.name
}

func (manager *Manager[P]) Code() uint64 {
	return manager.code
}

func (manager *Manager[P]) Fields() []Field[P] {
	return manager.fields
}

func (manager *Manager[P]) attach(registry *Registry) {
	manager.registry = registry
}

// AddVariable registers a receiver. Variable IDs are unique across the Registry
// and 0 is reserved for addressing all variables of a type.
func (manager *Manager[P]) AddVariable(variable Variable[P]) error {
	id := variable.ID()
	if id == 0 {
		return NewDuplicateVariableError(0)
	}
	if _, ok := manager.variables[id]; ok {
		return NewDuplicateVariableError(id)
	}
	if manager.registry != nil {
		if err := manager.registry.claimVariable(id, manager); err != nil {
			return err
		}
	}
	manager.variables[id] = variable
	return nil
}

// RemoveVariable unregisters the receiver with the given ID.
func (manager *Manager[P]) RemoveVariable(id uint32) error {
	if _, ok := manager.variables[id]; !ok {
		return NewNoSuchVariableError(id)
	}
	delete(manager.variables, id)
	if manager.registry != nil {
		manager.registry.releaseVariable(id)
	}
	return nil
}

// VariableIDs lists the registered variable IDs in ascending order.
func (manager *Manager[P]) VariableIDs() []uint32 {
	ids := make([]uint32, 0, len(manager.variables))
	for id := range manager.variables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (manager *Manager[P]) intelligence() *Intelligence {
	intel := &Intelligence{TypeName: manager.name, FieldNames: make([]string, len(manager.fields))}
	for i, field := range manager.fields {
		intel.FieldNames[i] = field.Name
	}
	return intel
}

func (manager *Manager[P]) checkIntelligence(intel *Intelligence) error {
	if intel.TypeName != manager.name {
		return NewIntelligenceMismatchError(fmt.Sprintf("type %q, expected %q", intel.TypeName, manager.name))
	}
	if len(intel.FieldNames) > len(manager.fields) {
		return NewIntelligenceMismatchError(fmt.Sprintf("%d fields announced, %s has %d", len(intel.FieldNames), manager.name, len(manager.fields)))
	}
	for i, name := range intel.FieldNames {
		if manager.fields[i].Name != name {
			return NewIntelligenceMismatchError(fmt.Sprintf("field %d is %q, expected %q", i, name, manager.fields[i].Name))
		}
	}
	return nil
}

// decodeBMF reads the intelligence block if present and all fields. On error the
// cursor is left where it was.
func (manager *Manager[P]) decodeBMF(cur *bmf.Cursor, intel bool) (P, error) {
	var payload P
	work := cur.Clone()

	if intel {
		description, err := readIntelligence(work)
		if err != nil {
			return payload, NewMalformedHeaderError("intelligence", err)
		}
		if err := manager.checkIntelligence(description); err != nil {
			return payload, err
		}
	}

	for _, field := range manager.fields {
		if !work.HasAttribute() {
			if !field.Optional {
				return payload, NewFieldError(manager.name, field.Name, nil)
			}
			if work.IsEmpty() {
				_ = work.Empty()
			}
			continue
		}
		if err := field.decode(&payload, work); err != nil {
			return payload, NewFieldError(manager.name, field.Name, err)
		}
	}

	*cur = *work
	return payload, nil
}

func (manager *Manager[P]) decodePML(msg *pml.Message) (P, error) {
	var payload P
	for _, field := range manager.fields {
		text, ok := msg.Get(field.Name, field.Namespaced)
		if !ok {
			if field.Optional {
				continue
			}
			return payload, NewFieldError(manager.name, field.Name, nil)
		}
		if err := field.parse(&payload, text); err != nil {
			return payload, NewFieldError(manager.name, field.Name, err)
		}
	}
	return payload, nil
}

// EncodeBMF builds the complete BMF message carrying payload to target.
func (manager *Manager[P]) EncodeBMF(target route.Target, payload P, intel bool) ([]byte, error) {
	var description *Intelligence
	if intel {
		description = manager.intelligence()
	}

	buf := bmf.NewMessageBuffer()
	err := CreateOutput(buf, target, manager.code, description, func(buf *bmf.Buffer) error {
		for _, field := range manager.fields {
			if err := field.encode(&payload, buf); err != nil {
				return NewFieldError(manager.name, field.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePML builds the PML message carrying payload to target.
func (manager *Manager[P]) EncodePML(target route.Target, payload P, intel bool) (*pml.Message, error) {
	if err := target.Route.Validate(); err != nil {
		return nil, err
	}

	msg := pml.NewMessage(manager.name)
	msg.VariableID = target.VariableID
	msg.Route = target.Route.Clone()
	msg.Broadcast = target.Broadcast
	msg.Intelligent = intel

	for _, field := range manager.fields {
		text := field.format(&payload)
		if err := bmf.ValidString(text); err != nil {
			return nil, NewFieldError(manager.name, field.Name, err)
		}
		msg.Set(field.Name, field.Namespaced, text)
	}
	return msg, nil
}

// receivers returns the variables a message for variableID is delivered to; 0
// selects every variable of the type.
func (manager *Manager[P]) receivers(variableID uint32) []Variable[P] {
	if variableID != 0 {
		variable, ok := manager.variables[variableID]
		if !ok {
			log.WithFields(log.Fields{
				"type":     manager.name,
				"variable": variableID,
			}).Debug("No such variable")
			return nil
		}
		return []Variable[P]{variable}
	}

	ids := manager.VariableIDs()
	variables := make([]Variable[P], 0, len(ids))
	for _, id := range ids {
		variables = append(variables, manager.variables[id])
	}
	return variables
}

func (manager *Manager[P]) deliver(variableID uint32, source route.Target, payload P) bool {
	variables := manager.receivers(variableID)
	for _, variable := range variables {
		variable.Receive(source, payload)
	}
	return len(variables) > 0
}

func (manager *Manager[P]) count(outcome string, ok bool) bool {
	if ok {
		metrics.CountMessage(manager.name, outcome)
	} else {
		metrics.CountMessage(manager.name, metrics.Dropped)
	}
	return ok
}

// DeliverBMF decodes the payload at cur and hands it to the addressed variable, or
// to every variable of this type for ID 0. A message with missing or malformed
// fields is dropped as a whole.
func (manager *Manager[P]) DeliverBMF(variableID uint32, source route.Target, cur *bmf.Cursor, intel bool) bool {
	payload, err := manager.decodeBMF(cur, intel)
	if err != nil {
		log.WithFields(log.Fields{
			"type":   manager.name,
			"source": source,
			"error":  err,
		}).Warn("Dropping BMF message")
		return manager.count(metrics.Delivered, false)
	}
	return manager.count(metrics.Delivered, manager.deliver(variableID, source, payload))
}

// DeliverPML is DeliverBMF for PML. Applied attributes are consumed from msg.
func (manager *Manager[P]) DeliverPML(variableID uint32, source route.Target, msg *pml.Message, intel bool) bool {
	payload, err := manager.decodePML(msg)
	if err != nil {
		log.WithFields(log.Fields{
			"type":   manager.name,
			"source": source,
			"error":  err,
		}).Warn("Dropping PML message")
		return manager.count(metrics.Delivered, false)
	}

	variables := manager.receivers(variableID)
	if len(variables) == 0 {
		return manager.count(metrics.Delivered, false)
	}

	for _, field := range manager.fields {
		msg.Consume(field.Name, field.Namespaced)
	}
	if left := msg.Leftover(); intel && len(left) > 0 {
		log.WithFields(log.Fields{
			"type":       manager.name,
			"attributes": left,
		}).Debug("Unknown attributes ignored")
	}
	for _, variable := range variables {
		variable.Receive(source, payload)
	}
	return manager.count(metrics.Delivered, true)
}

func (manager *Manager[P]) lookup(port uint32) (*eif.Interface, error) {
	if manager.registry == nil {
		return nil, NewNotRegisteredError(manager.name)
	}
	return manager.registry.director.LookupInterface(port)
}

// TranslateBMF re-encodes the BMF payload at cur as PML and sends it on port.
func (manager *Manager[P]) TranslateBMF(port uint32, target route.Target, cur *bmf.Cursor, intel bool) bool {
	err := func() error {
		iface, err := manager.lookup(port)
		if err != nil {
			return err
		}
		payload, err := manager.decodeBMF(cur, intel)
		if err != nil {
			return err
		}
		msg, err := manager.EncodePML(target, payload, intel)
		if err != nil {
			return err
		}
		return iface.SendPML(msg)
	}()

	if err != nil {
		log.WithFields(log.Fields{
			"type":  manager.name,
			"port":  port,
			"error": err,
		}).Warn("Translating BMF to PML failed")
	}
	return manager.count(metrics.Translated, err == nil)
}

// TranslatePML re-encodes msg as BMF and sends it on port.
func (manager *Manager[P]) TranslatePML(port uint32, target route.Target, msg *pml.Message, intel bool) bool {
	err := func() error {
		iface, err := manager.lookup(port)
		if err != nil {
			return err
		}
		payload, err := manager.decodePML(msg)
		if err != nil {
			return err
		}
		data, err := manager.EncodeBMF(target, payload, intel)
		if err != nil {
			return err
		}
		return iface.SendBMF(data)
	}()

	if err != nil {
		log.WithFields(log.Fields{
			"type":  manager.name,
			"port":  port,
			"error": err,
		}).Warn("Translating PML to BMF failed")
	}
	return manager.count(metrics.Translated, err == nil)
}

// Send transmits payload to target. Broadcasts reach every writable interface in
// its own encoding; unresolved targets are resolved to their first hop.
func (manager *Manager[P]) Send(target route.Target, payload P) error {
	return manager.send(target, payload, false)
}

// SendIntelligent is Send with the self-description of the type attached.
func (manager *Manager[P]) SendIntelligent(target route.Target, payload P) error {
	return manager.send(target, payload, true)
}

func (manager *Manager[P]) send(target route.Target, payload P, intel bool) error {
	if manager.registry == nil {
		return NewNotRegisteredError(manager.name)
	}
	if err := target.Validate(); err != nil {
		return err
	}

	if target.Broadcast {
		return manager.broadcast(target, payload, intel)
	}

	resolved, err := target.Resolve()
	if err != nil {
		return err
	}
	iface, err := manager.registry.director.LookupInterface(resolved.Port)
	if err != nil {
		return err
	}

	if err := manager.sendTo(iface, resolved, payload, intel); err != nil {
		return err
	}
	metrics.CountMessage(manager.name, metrics.Sent)
	return nil
}

func (manager *Manager[P]) sendTo(iface *eif.Interface, target route.Target, payload P, intel bool) error {
	if iface.IsPMLNotBMF() {
		msg, err := manager.EncodePML(target, payload, intel)
		if err != nil {
			return err
		}
		return iface.SendPML(msg)
	}

	data, err := manager.EncodeBMF(target, payload, intel)
	if err != nil {
		return err
	}
	return iface.SendBMF(data)
}

// broadcast encodes each form at most once and only if an interface speaks it.
func (manager *Manager[P]) broadcast(target route.Target, payload P, intel bool) error {
	var (
		data   []byte
		msg    *pml.Message
		result error
		// an encoding error is the same for every interface and fails the whole broadcast
		encodeErr error
	)

	manager.registry.director.ForEach(func(iface *eif.Interface) {
		if !iface.Writable() || encodeErr != nil {
			return
		}

		var err error
		if iface.IsPMLNotBMF() {
			if msg == nil {
				if msg, encodeErr = manager.EncodePML(target, payload, intel); encodeErr != nil {
					return
				}
			}
			err = iface.SendPML(msg)
		} else {
			if data == nil {
				if data, encodeErr = manager.EncodeBMF(target, payload, intel); encodeErr != nil {
					return
				}
			}
			err = iface.SendBMF(data)
		}

		if err != nil {
			result = multierror.Append(result, fmt.Errorf("port %d: %w", iface.Port(), err))
		} else {
			metrics.CountMessage(manager.name, metrics.Sent)
		}
	})

	if encodeErr != nil {
		return encodeErr
	}
	return result
}
