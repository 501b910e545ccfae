// Package memsys is an in-process implementation of system.Core.
//
// All native state lives behind one mutex. Handles are stored in a
// resource.Table and never reused. Trap events are queued while the lock is
// held and delivered by a per-trap dispatcher goroutine, in order, with no
// lock held, so handlers behave like callbacks from a foreign thread.
//
// Shared buffers are backed by memfd and mmap on Linux, with read-only
// duplicates mapped PROT_READ. Other platforms and sandboxes without memfd
// fall back to heap memory.
package memsys

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/config"
	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/system"
)

// Options size the core's pipes and buffers.
type Options struct {
	// DefaultDataPipeCapacity is used when DataPipeOptions.Capacity is 0.
	DefaultDataPipeCapacity uint32
	// MaxQueuedMessages bounds each message pipe queue. Zero means
	// unbounded.
	MaxQueuedMessages int
	// MaxHandlesPerMessage bounds handles attached to one message. Zero
	// means unbounded.
	MaxHandlesPerMessage int
}

// OptionsFromConfig derives Options from loaded configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		DefaultDataPipeCapacity: uint32(cfg.Pipes.DefaultDataPipeCapacity),
		MaxQueuedMessages:       cfg.Pipes.MaxQueuedMessages,
		MaxHandlesPerMessage:    cfg.Codec.MaxHandles,
	}
}

// DefaultOptions returns the options of config.Default.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// Core is an in-process system.Core.
type Core struct {
	table    *resource.Table
	watchers map[system.Handle]map[*trigger]struct{}
	mappings map[mappingKey][]func() error
	traps    map[*trap]struct{}
	dirty    []object
	opts     Options
	mu       sync.Mutex
	closed   bool
}

var _ system.Core = (*Core)(nil)

// New creates a core.
func New(opts Options) *Core {
	if opts.DefaultDataPipeCapacity == 0 {
		opts.DefaultDataPipeCapacity = config.DefaultDataPipeCapacity
	}
	c := &Core{
		table:    resource.NewTable(),
		watchers: make(map[system.Handle]map[*trigger]struct{}),
		mappings: make(map[mappingKey][]func() error),
		traps:    make(map[*trap]struct{}),
		opts:     opts,
	}
	c.table.Subscribe(observer{c})
	return c
}

// observer cancels triggers on handles that leave the table. It runs under
// c.mu because every table mutation does.
type observer struct {
	c *Core
}

func (o observer) OnResourceEvent(e resource.Event) {
	switch e.Type {
	case resource.EventClosed, resource.EventTransferred:
		for t := range o.c.watchers[e.Handle] {
			o.c.cancelTrigger(t, system.SignalsState{})
		}
	}
}

// object is a value stored in the table.
type object interface {
	resource.Dropper
	kind() resource.TypeID
	signals() system.SignalsState
	handle() system.Handle
	setHandle(system.Handle)
}

const (
	typeMessagePipe resource.TypeID = iota + 1
	typeDataProducer
	typeDataConsumer
	typeBuffer
)

// lookup returns the object behind h if it has the given type.
func (c *Core) lookup(h system.Handle, typeID resource.TypeID) (object, error) {
	v, ok := c.table.GetTyped(h, typeID)
	if !ok {
		return nil, system.ResultInvalidArgument
	}
	return v.(object), nil
}

// insert stores o under a fresh handle.
func (c *Core) insert(o object) (system.Handle, error) {
	h := c.table.Insert(o.kind(), o)
	if !h.IsValid() {
		return system.InvalidHandle, system.ResultResourceExhausted
	}
	o.setHandle(h)
	return h, nil
}

// touch records that o's signals may have changed. flush evaluates
// triggers for every touched object.
func (c *Core) touch(o object) {
	c.dirty = append(c.dirty, o)
}

func (c *Core) flush() {
	dirty := c.dirty
	c.dirty = nil
	for _, o := range dirty {
		h := o.handle()
		if !h.IsValid() {
			continue
		}
		watchers := c.watchers[h]
		if len(watchers) == 0 {
			continue
		}
		st := o.signals()
		for t := range watchers {
			t.evaluate(st)
		}
	}
}

// Close implements system.Core.
func (c *Core) Close(h system.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.table.Remove(h); !ok {
		return system.ResultInvalidArgument
	}
	c.flush()
	return nil
}

// QuerySignals implements system.Core.
func (c *Core) QuerySignals(h system.Handle) (system.SignalsState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.table.Get(h)
	if !ok {
		return system.SignalsState{}, system.ResultInvalidArgument
	}
	return v.(object).signals(), nil
}

// Len returns the number of open handles.
func (c *Core) Len() int {
	return c.table.Len()
}

// Shutdown closes every handle, trap and mapping. The core rejects new
// objects afterwards.
func (c *Core) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	for t := range c.traps {
		err = multierr.Append(err, t.closeLocked())
	}
	c.table.Clear()
	c.flush()
	c.table.Unsubscribe(observer{c})
	for key, live := range c.mappings {
		for _, unmap := range live {
			err = multierr.Append(err, unmap())
		}
		delete(c.mappings, key)
	}
	err = multierr.Append(err, c.table.Close())
	if err != nil {
		Logger().Warn("core shutdown", zap.Error(err))
	}
	return err
}

func (c *Core) checkOpen() error {
	if c.closed {
		return system.ResultUnavailable
	}
	return nil
}
