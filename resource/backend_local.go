package resource

import (
	"errors"
	"math"
	"slices"
	"sync"

	"github.com/wippyai/mojo-wire/system"
)

var (
	ErrClosed    = errors.New("resource backend closed")
	ErrExhausted = errors.New("handle space exhausted")
)

// LocalBackend is an in-memory backend. Handle values are allocated
// monotonically and never reused, so a stale handle can not alias a newer
// object.
type LocalBackend struct {
	entries map[system.Handle]entry
	next    system.Handle
	mu      sync.RWMutex
	closed  bool
}

type entry struct {
	value  any
	typeID TypeID
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries: make(map[system.Handle]entry, 64),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(typeID TypeID, value any) (system.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return system.InvalidHandle, ErrClosed
	}
	if b.next == math.MaxUint32 {
		return system.InvalidHandle, ErrExhausted
	}

	b.next++
	b.entries[b.next] = entry{typeID: typeID, value: value}
	return b.next, nil
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(h system.Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[h]
	return e.value, ok
}

// TypeID returns the type ID for a handle.
func (b *LocalBackend) TypeID(h system.Handle) (TypeID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[h]
	return e.typeID, ok
}

// Drop removes a handle and returns (value, true) if it was live.
func (b *LocalBackend) Drop(h system.Handle) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[h]
	if !ok {
		return nil, false
	}
	delete(b.entries, h)
	return e.value, true
}

// Close releases all values, calling Drop on those that implement Dropper.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()

	for _, h := range sortedHandles(entries) {
		if d, ok := entries[h].value.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

// Len returns the number of live handles.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Each iterates over live handles in ascending order. The callback runs
// without the backend lock held.
func (b *LocalBackend) Each(fn func(system.Handle, TypeID, any) bool) {
	b.mu.RLock()
	snapshot := make(map[system.Handle]entry, len(b.entries))
	for h, e := range b.entries {
		snapshot[h] = e
	}
	b.mu.RUnlock()

	for _, h := range sortedHandles(snapshot) {
		e := snapshot[h]
		if !fn(h, e.typeID, e.value) {
			return
		}
	}
}

func sortedHandles(entries map[system.Handle]entry) []system.Handle {
	hs := make([]system.Handle, 0, len(entries))
	for h := range entries {
		hs = append(hs, h)
	}
	slices.Sort(hs)
	return hs
}
