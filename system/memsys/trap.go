package memsys

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/system"
)

type trigger struct {
	trap    *trap
	id      system.TriggerID
	context uint64
	h       system.Handle
	signals system.Signals
	cond    system.TriggerCondition
}

// check reports whether t's condition resolves in state st.
func (t *trigger) check(st system.SignalsState) (system.Result, bool) {
	switch t.cond {
	case system.TriggerSignalsSatisfied:
		if st.IsSatisfied(t.signals) {
			return system.ResultOK, true
		}
		if !st.CanSatisfy(t.signals) {
			return system.ResultFailedPrecondition, true
		}
	case system.TriggerSignalsUnsatisfied:
		if !st.IsSatisfied(t.signals) {
			return system.ResultOK, true
		}
	}
	return system.ResultOK, false
}

// evaluate fires t if its trap is armed and the condition resolves. The
// trap disarms after one event.
func (t *trigger) evaluate(st system.SignalsState) {
	tr := t.trap
	if !tr.armed {
		return
	}
	res, ok := t.check(st)
	if !ok {
		return
	}
	tr.armed = false
	tr.queue.push(system.TrapEvent{Context: t.context, Trigger: t.id, State: st, Result: res})
}

type trap struct {
	core     *Core
	queue    *dispatcher
	triggers map[system.TriggerID]*trigger
	contexts map[uint64]struct{}
	nextID   system.TriggerID
	armed    bool
	closed   bool
}

var _ system.Trap = (*trap)(nil)

// CreateTrap implements system.Core.
func (c *Core) CreateTrap(handler system.TrapHandler) (system.Trap, error) {
	if handler == nil {
		return nil, system.ResultInvalidArgument
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	t := &trap{
		core:     c,
		queue:    newDispatcher(handler),
		triggers: make(map[system.TriggerID]*trigger),
		contexts: make(map[uint64]struct{}),
	}
	c.traps[t] = struct{}{}
	return t, nil
}

// AddTrigger implements system.Trap. Contexts must be unique within a trap.
func (t *trap) AddTrigger(h system.Handle, signals system.Signals, cond system.TriggerCondition, context uint64) (system.TriggerID, error) {
	c := t.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.closed {
		return 0, system.ResultInvalidArgument
	}
	if cond != system.TriggerSignalsSatisfied && cond != system.TriggerSignalsUnsatisfied {
		return 0, system.ResultInvalidArgument
	}
	if _, ok := c.table.Get(h); !ok {
		return 0, system.ResultInvalidArgument
	}
	if _, dup := t.contexts[context]; dup {
		return 0, system.ResultAlreadyExists
	}

	t.nextID++
	tr := &trigger{trap: t, id: t.nextID, context: context, h: h, signals: signals, cond: cond}
	t.triggers[tr.id] = tr
	t.contexts[context] = struct{}{}
	w := c.watchers[h]
	if w == nil {
		w = make(map[*trigger]struct{})
		c.watchers[h] = w
	}
	w[tr] = struct{}{}
	return tr.id, nil
}

// RemoveTrigger implements system.Trap.
func (t *trap) RemoveTrigger(id system.TriggerID) error {
	c := t.core
	c.mu.Lock()
	defer c.mu.Unlock()

	tr, ok := t.triggers[id]
	if !ok {
		return system.ResultNotFound
	}
	var st system.SignalsState
	if v, ok := c.table.Get(tr.h); ok {
		st = v.(object).signals()
	}
	c.cancelTrigger(tr, st)
	return nil
}

// cancelTrigger unregisters tr and queues its final event. Caller holds
// c.mu.
func (c *Core) cancelTrigger(tr *trigger, st system.SignalsState) {
	t := tr.trap
	delete(t.triggers, tr.id)
	delete(t.contexts, tr.context)
	if w := c.watchers[tr.h]; w != nil {
		delete(w, tr)
		if len(w) == 0 {
			delete(c.watchers, tr.h)
		}
	}
	t.queue.push(system.TrapEvent{Context: tr.context, Trigger: tr.id, State: st, Result: system.ResultCancelled})
}

// Arm implements system.Trap.
func (t *trap) Arm() ([]system.TrapEvent, error) {
	c := t.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.closed {
		return nil, system.ResultInvalidArgument
	}
	if len(t.triggers) == 0 {
		return nil, system.ResultNotFound
	}
	if t.armed {
		return nil, nil
	}

	ids := make([]system.TriggerID, 0, len(t.triggers))
	for id := range t.triggers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var blocking []system.TrapEvent
	for _, id := range ids {
		tr := t.triggers[id]
		v, ok := c.table.Get(tr.h)
		if !ok {
			continue
		}
		st := v.(object).signals()
		if res, fired := tr.check(st); fired {
			blocking = append(blocking, system.TrapEvent{Context: tr.context, Trigger: tr.id, State: st, Result: res})
		}
	}
	if len(blocking) > 0 {
		return blocking, system.ResultFailedPrecondition
	}
	t.armed = true
	return nil, nil
}

// Close implements system.Trap.
func (t *trap) Close() error {
	c := t.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.closeLocked()
}

func (t *trap) closeLocked() error {
	if t.closed {
		return system.ResultInvalidArgument
	}
	ids := make([]system.TriggerID, 0, len(t.triggers))
	for id := range t.triggers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		t.core.cancelTrigger(t.triggers[id], system.SignalsState{})
	}
	t.closed = true
	t.armed = false
	delete(t.core.traps, t)
	t.queue.close()
	return nil
}

// dispatcher delivers events to a handler on its own goroutine, in push
// order. The queue is unbounded so pushing never blocks the core.
type dispatcher struct {
	handler system.TrapHandler
	cond    *sync.Cond
	pending []system.TrapEvent
	mu      sync.Mutex
	closed  bool
}

func newDispatcher(handler system.TrapHandler) *dispatcher {
	d := &dispatcher{handler: handler}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) push(ev system.TrapEvent) {
	d.mu.Lock()
	if !d.closed {
		d.pending = append(d.pending, ev)
		d.cond.Signal()
	}
	d.mu.Unlock()
}

// close stops the goroutine once everything queued so far is delivered.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		batch := d.pending
		d.pending = nil
		done := d.closed
		d.mu.Unlock()

		for _, ev := range batch {
			d.deliver(ev)
		}
		if done {
			return
		}
	}
}

func (d *dispatcher) deliver(ev system.TrapEvent) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("trap handler panicked",
				zap.Uint64("context", ev.Context),
				zap.Any("panic", r))
		}
	}()
	d.handler(ev)
}
