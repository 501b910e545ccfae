package wait

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/system"
)

// Cookie names one registration in a WaitSet.
type Cookie uint64

// Event reports what happened to a registered handle. Err is nil when a
// watched signal is satisfied, ResultFailedPrecondition when none can be
// satisfied any more, and ResultCancelled when the handle was closed. A
// cancelled registration is removed from the set.
type Event struct {
	Err    error
	Cookie Cookie
	State  system.SignalsState
}

type registration struct {
	h       system.Handle
	trigger system.TriggerID
	seq     uint64
}

// WaitSet waits on many handles at once.
//
// Add, Remove, Wait and Close serialize with each other. The trap callback
// only takes the internal event lock, so it never waits for a caller that
// is blocked in Wait.
type WaitSet struct {
	core    system.Core
	trap    system.Trap
	entries map[Cookie]*registration

	// opMu serializes Add, Remove, Close and the arming step of Wait.
	opMu sync.Mutex

	evMu    sync.Mutex
	cond    *sync.Cond
	live    map[uint64]Cookie
	pending map[Cookie]Event
	fired   bool
	nextSeq uint64
	closed  bool
}

// NewWaitSet creates an empty set.
func NewWaitSet(core system.Core) (*WaitSet, error) {
	ws := &WaitSet{
		core:    core,
		entries: make(map[Cookie]*registration),
		live:    make(map[uint64]Cookie),
		pending: make(map[Cookie]Event),
	}
	ws.cond = sync.NewCond(&ws.evMu)

	trap, err := core.CreateTrap(ws.onEvent)
	if err != nil {
		return nil, err
	}
	ws.trap = trap
	return ws, nil
}

// onEvent is the trap callback. It records the event for a live
// registration and wakes waiters, nothing else.
func (ws *WaitSet) onEvent(ev system.TrapEvent) {
	ws.evMu.Lock()
	ws.recordLocked(ev)
	ws.evMu.Unlock()
}

func (ws *WaitSet) recordLocked(ev system.TrapEvent) {
	ws.fired = true
	if cookie, ok := ws.live[ev.Context]; ok {
		ws.pending[cookie] = Event{Cookie: cookie, State: ev.State, Err: ev.Result.Err()}
	}
	ws.cond.Broadcast()
}

// Add watches signals on h under cookie. A cookie that is already live
// fails with ResultAlreadyExists and the existing registration is kept.
func (ws *WaitSet) Add(cookie Cookie, h system.Handle, signals system.Signals) error {
	ws.opMu.Lock()
	defer ws.opMu.Unlock()

	if ws.closed {
		return system.ResultFailedPrecondition
	}
	if _, ok := ws.entries[cookie]; ok {
		return system.ResultAlreadyExists
	}

	ws.evMu.Lock()
	ws.nextSeq++
	seq := ws.nextSeq
	if prev, ok := ws.live[seq]; ok {
		ws.evMu.Unlock()
		Logger().Error("registration sequence reused", zap.Uint64("seq", seq), zap.Uint64("cookie", uint64(prev)))
		panic("wait: registration sequence reused")
	}
	ws.live[seq] = cookie
	ws.evMu.Unlock()

	id, err := ws.trap.AddTrigger(h, signals, system.TriggerSignalsSatisfied, seq)
	if err != nil {
		ws.evMu.Lock()
		delete(ws.live, seq)
		ws.evMu.Unlock()
		return err
	}
	ws.entries[cookie] = &registration{h: h, trigger: id, seq: seq}
	return nil
}

// Remove stops watching cookie. No later Wait reports it, even if its
// event was already in flight.
func (ws *WaitSet) Remove(cookie Cookie) error {
	ws.opMu.Lock()
	defer ws.opMu.Unlock()

	reg, ok := ws.entries[cookie]
	if !ok {
		return system.ResultNotFound
	}
	delete(ws.entries, cookie)
	ws.forget(cookie, reg.seq)

	if err := ws.trap.RemoveTrigger(reg.trigger); err != nil && !errors.Is(err, system.ResultNotFound) {
		return err
	}
	return nil
}

func (ws *WaitSet) forget(cookie Cookie, seq uint64) {
	ws.evMu.Lock()
	delete(ws.live, seq)
	delete(ws.pending, cookie)
	ws.evMu.Unlock()
}

// Len returns the number of live registrations.
func (ws *WaitSet) Len() int {
	ws.opMu.Lock()
	defer ws.opMu.Unlock()
	return len(ws.entries)
}

// Wait blocks until at least one registration has an event and returns
// every pending event, sorted by cookie. Only the most recent event per
// cookie is kept. An empty set fails with ResultFailedPrecondition and a
// finished context returns ctx.Err().
func (ws *WaitSet) Wait(ctx context.Context) ([]Event, error) {
	stop := context.AfterFunc(ctx, func() {
		ws.evMu.Lock()
		ws.cond.Broadcast()
		ws.evMu.Unlock()
	})
	defer stop()

	for {
		if err := ws.arm(); err != nil {
			return nil, err
		}

		ws.evMu.Lock()
		for len(ws.pending) == 0 && !ws.fired && ctx.Err() == nil {
			ws.cond.Wait()
		}
		ws.fired = false
		events := ws.drainLocked()
		ws.evMu.Unlock()

		if len(events) > 0 {
			ws.dropCancelled(events)
			return events, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// arm enables the trap, recording synchronously reported events exactly
// like callbacks.
func (ws *WaitSet) arm() error {
	ws.opMu.Lock()
	defer ws.opMu.Unlock()

	if ws.closed {
		return system.ResultFailedPrecondition
	}

	ws.evMu.Lock()
	ready := len(ws.pending) > 0
	ws.evMu.Unlock()
	if ready {
		return nil
	}
	if len(ws.entries) == 0 {
		return system.ResultFailedPrecondition
	}

	blocking, err := ws.trap.Arm()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, system.ResultNotFound):
		// Every trigger was cancelled; the events are on their way.
		return nil
	case errors.Is(err, system.ResultFailedPrecondition):
		ws.evMu.Lock()
		for _, ev := range blocking {
			ws.recordLocked(ev)
		}
		ws.evMu.Unlock()
		return nil
	default:
		return err
	}
}

func (ws *WaitSet) drainLocked() []Event {
	if len(ws.pending) == 0 {
		return nil
	}
	events := make([]Event, 0, len(ws.pending))
	for cookie, ev := range ws.pending {
		events = append(events, ev)
		delete(ws.pending, cookie)
	}
	slices.SortFunc(events, func(a, b Event) int {
		switch {
		case a.Cookie < b.Cookie:
			return -1
		case a.Cookie > b.Cookie:
			return 1
		default:
			return 0
		}
	})
	return events
}

// dropCancelled removes registrations whose handle went away.
func (ws *WaitSet) dropCancelled(events []Event) {
	ws.opMu.Lock()
	defer ws.opMu.Unlock()
	for _, ev := range events {
		if !errors.Is(ev.Err, system.ResultCancelled) {
			continue
		}
		if reg, ok := ws.entries[ev.Cookie]; ok {
			delete(ws.entries, ev.Cookie)
			ws.forget(ev.Cookie, reg.seq)
		}
	}
}

// Close removes every registration and releases the trap.
func (ws *WaitSet) Close() error {
	ws.opMu.Lock()
	defer ws.opMu.Unlock()

	if ws.closed {
		return nil
	}
	ws.closed = true

	var err error
	for cookie, reg := range ws.entries {
		ws.forget(cookie, reg.seq)
		if rerr := ws.trap.RemoveTrigger(reg.trigger); rerr != nil && !errors.Is(rerr, system.ResultNotFound) {
			err = multierr.Append(err, rerr)
		}
	}
	ws.entries = nil
	err = multierr.Append(err, ws.trap.Close())

	ws.evMu.Lock()
	ws.fired = true
	ws.cond.Broadcast()
	ws.evMu.Unlock()
	return err
}
