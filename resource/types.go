package resource

import "github.com/wippyai/mojo-wire/system"

// TypeID tags the kind of object stored under a handle.
type TypeID uint32

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	// EventClosed is sent after the object's Dropper ran.
	EventClosed
	// EventTransferred is sent when an object leaves the table without
	// being destroyed, for example while a message carries it.
	EventTransferred
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventClosed:
		return "closed"
	case EventTransferred:
		return "transferred"
	default:
		return "unknown"
	}
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle system.Handle
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about handle lifecycle events. Observers
// run synchronously on the goroutine that changed the table.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage for a Table.
type Backend interface {
	// Create stores a value and returns a fresh handle.
	Create(typeID TypeID, value any) (system.Handle, error)

	// Get retrieves a value by handle.
	Get(h system.Handle) (any, bool)

	// TypeID returns the type a handle was created with.
	TypeID(h system.Handle) (TypeID, bool)

	// Drop removes a handle and returns its value.
	Drop(h system.Handle) (any, bool)

	// Len returns the number of live handles.
	Len() int

	// Each iterates over live handles in ascending order.
	Each(func(system.Handle, TypeID, any) bool)

	// Close releases all values held by the backend.
	Close() error
}

// Dropper is optionally implemented by values that need cleanup when their
// handle is closed.
type Dropper interface {
	Drop()
}
