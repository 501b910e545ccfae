package resource

import (
	"sync"

	"github.com/wippyai/mojo-wire/system"
)

// Table maps raw handles to the objects behind them and reports lifecycle
// events to observers.
type Table struct {
	backend   Backend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a table over a LocalBackend.
func NewTable() *Table {
	return NewTableWithBackend(NewLocalBackend())
}

// NewTableWithBackend creates a table over the given backend.
func NewTableWithBackend(b Backend) *Table {
	return &Table{backend: b}
}

// Insert adds a value and returns its handle, or InvalidHandle once the
// table is closed or out of handles.
func (t *Table) Insert(typeID TypeID, value any) system.Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return system.InvalidHandle
	}
	t.closeMu.RUnlock()

	h, err := t.backend.Create(typeID, value)
	if err != nil {
		return system.InvalidHandle
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: h,
		TypeID: typeID,
		Value:  value,
	})
	return h
}

// Get retrieves a value by handle.
func (t *Table) Get(h system.Handle) (any, bool) {
	return t.backend.Get(h)
}

// GetTyped retrieves a value only if it was inserted with typeID.
func (t *Table) GetTyped(h system.Handle, typeID TypeID) (any, bool) {
	actual, ok := t.backend.TypeID(h)
	if !ok || actual != typeID {
		return nil, false
	}
	return t.backend.Get(h)
}

// Remove closes a handle: the value's Dropper runs and observers see
// EventClosed.
func (t *Table) Remove(h system.Handle) (any, bool) {
	typeID, _ := t.backend.TypeID(h)
	value, ok := t.backend.Drop(h)
	if !ok {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventClosed,
		Handle: h,
		TypeID: typeID,
		Value:  value,
	})
	return value, true
}

// Detach removes a handle without destroying its value. Observers see
// EventTransferred. The value can be re-inserted under a new handle.
func (t *Table) Detach(h system.Handle) (any, bool) {
	typeID, _ := t.backend.TypeID(h)
	value, ok := t.backend.Drop(h)
	if !ok {
		return nil, false
	}

	t.notify(Event{
		Type:   EventTransferred,
		Handle: h,
		TypeID: typeID,
		Value:  value,
	})
	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Observers returns the number of subscribed observers.
func (t *Table) Observers() int {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	return len(t.observers)
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Each iterates over live handles in ascending order.
func (t *Table) Each(fn func(system.Handle, TypeID, any) bool) {
	t.backend.Each(fn)
}

// Clear closes every live handle.
func (t *Table) Clear() {
	var handles []system.Handle
	t.backend.Each(func(h system.Handle, _ TypeID, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close releases all values and stops accepting inserts. Observers are not
// notified.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
