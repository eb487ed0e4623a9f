// SPDX-License-Identifier: GPL-3.0-or-later

package route

import (
	"fmt"
	"math"
)

// Target addresses a message endpoint.
//
// A Target is either a broadcast target, which ignores port and route, or carries
// exactly one of an unresolved remote route or a resolved port. Once resolved,
// Route holds the onward hops that travel inside the message.
type Target struct {
	Broadcast bool
	// Local is set once the message has arrived at this node.
	Local bool

	Port    uint32
	HasPort bool

	Route Route

	// VariableID of the receiving variable, 0 if unknown.
	VariableID uint32
}

// NewBroadcast creates a Target reaching every port.
func NewBroadcast() Target {
	return Target{Broadcast: true}
}

// NewPort creates a Target resolved to a local port.
func NewPort(port uint32, variableID uint32) Target {
	return Target{Port: port, HasPort: true, VariableID: variableID}
}

// NewRemote creates an unresolved Target following the given route.
func NewRemote(r Route, variableID uint32) Target {
	return Target{Route: r.Clone(), VariableID: variableID}
}

// NewArrived creates the source Target of a message which came in on port.
func NewArrived(port uint32) Target {
	return Target{Local: true, Port: port, HasPort: true}
}

// Validate checks the Target invariant.
func (t Target) Validate() error {
	if t.Broadcast {
		if t.HasPort || !t.Route.Arrived() {
			return NewInvalidTargetError(t, "broadcast target with port or route")
		}
		return nil
	}
	if !t.HasPort && t.Route.Arrived() {
		return NewInvalidTargetError(t, "neither port nor route")
	}
	return t.Route.Validate()
}

// Resolved reports whether the outgoing port is known.
func (t Target) Resolved() bool {
	return t.HasPort
}

// Arrived reports whether no hops are left after the current one.
func (t Target) Arrived() bool {
	return t.Route.Arrived()
}

// Resolve consumes the head hop of an unresolved route as the outgoing port.
// Broadcast and already resolved targets are returned unchanged.
func (t Target) Resolve() (Target, error) {
	if t.Broadcast || t.HasPort {
		return t, nil
	}

	head, rest, ok := t.Route.Head()
	if !ok {
		return t, NewInvalidTargetError(t, "empty route")
	}
	if head.IsToken || head.Number > math.MaxUint32 {
		return t, NewInvalidTargetError(t, fmt.Sprintf("hop %v is not a port", head))
	}

	resolved := t
	resolved.Port = uint32(head.Number)
	resolved.HasPort = true
	resolved.Route = rest.Clone()
	return resolved, nil
}

// Forward prepares a Target for the next hop: the onward route becomes unresolved again.
func (t Target) Forward() Target {
	return Target{Route: t.Route.Clone(), VariableID: t.VariableID}
}

func (t Target) String() string {
	switch {
	case t.Broadcast:
		return fmt.Sprintf("broadcast(var=%d)", t.VariableID)
	case t.HasPort && t.Local:
		return fmt.Sprintf("arrived(port=%d)", t.Port)
	case t.HasPort:
		return fmt.Sprintf("port(%d, onward=%q, var=%d)", t.Port, t.Route.String(), t.VariableID)
	default:
		return fmt.Sprintf("remote(%q, var=%d)", t.Route.String(), t.VariableID)
	}
}
