package memsys

import (
	"testing"
	"time"

	"github.com/wippyai/mojo-wire/system"
)

type eventSink chan system.TrapEvent

func (s eventSink) handler(ev system.TrapEvent) { s <- ev }

func (s eventSink) next(t *testing.T) system.TrapEvent {
	t.Helper()
	select {
	case ev := <-s:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for trap event")
		return system.TrapEvent{}
	}
}

func (s eventSink) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-s:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func newTrap(t *testing.T, c *Core) (system.Trap, eventSink) {
	t.Helper()
	sink := make(eventSink, 16)
	tr, err := c.CreateTrap(sink.handler)
	if err != nil {
		t.Fatal(err)
	}
	return tr, sink
}

func TestTrap_FiresOnceWhenArmed(t *testing.T) {
	c := newCore(t)
	a, b, _ := c.CreateMessagePipe()
	tr, sink := newTrap(t, c)

	id, err := tr.AddTrigger(b, system.SignalReadable, system.TriggerSignalsSatisfied, 42)
	if err != nil {
		t.Fatal(err)
	}

	// Not armed: no event.
	_ = c.WriteMessage(a, []byte{1}, nil)
	sink.none(t)
	_, _, _ = c.ReadMessage(b)

	if blocking, err := tr.Arm(); err != nil || blocking != nil {
		t.Fatalf("Arm = %v, %v", blocking, err)
	}
	_ = c.WriteMessage(a, []byte{2}, nil)
	ev := sink.next(t)
	if ev.Context != 42 || ev.Trigger != id || ev.Result != system.ResultOK || !ev.State.IsSatisfied(system.SignalReadable) {
		t.Fatalf("event = %+v", ev)
	}

	// Disarmed after firing.
	_ = c.WriteMessage(a, []byte{3}, nil)
	sink.none(t)
}

func TestTrap_ArmReportsBlockingEvents(t *testing.T) {
	c := newCore(t)
	a, b, _ := c.CreateMessagePipe()
	tr, _ := newTrap(t, c)

	_, err := tr.Arm()
	wantResult(t, err, system.ResultNotFound)

	_, _ = tr.AddTrigger(a, system.SignalReadable, system.TriggerSignalsSatisfied, 1)
	_, _ = tr.AddTrigger(b, system.SignalWritable, system.TriggerSignalsSatisfied, 2)

	blocking, err := tr.Arm()
	wantResult(t, err, system.ResultFailedPrecondition)
	if len(blocking) != 1 || blocking[0].Context != 2 || blocking[0].Result != system.ResultOK {
		t.Fatalf("blocking = %+v", blocking)
	}
}

func TestTrap_Unsatisfiable(t *testing.T) {
	c := newCore(t)
	a, b, _ := c.CreateMessagePipe()
	tr, sink := newTrap(t, c)

	_, _ = tr.AddTrigger(b, system.SignalReadable, system.TriggerSignalsSatisfied, 7)
	if _, err := tr.Arm(); err != nil {
		t.Fatal(err)
	}
	_ = c.Close(a)

	ev := sink.next(t)
	if ev.Result != system.ResultFailedPrecondition || ev.Context != 7 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTrap_UnsatisfiedCondition(t *testing.T) {
	c := newCore(t)
	a, b, _ := c.CreateMessagePipe()
	tr, sink := newTrap(t, c)

	_ = c.WriteMessage(a, []byte{1}, nil)
	_, _ = tr.AddTrigger(b, system.SignalReadable, system.TriggerSignalsUnsatisfied, 5)
	if _, err := tr.Arm(); err != nil {
		t.Fatal(err)
	}
	_, _, _ = c.ReadMessage(b)

	ev := sink.next(t)
	if ev.Result != system.ResultOK || ev.Context != 5 || ev.State.IsSatisfied(system.SignalReadable) {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTrap_CancelOnRemoveAndClose(t *testing.T) {
	c := newCore(t)
	a, b, _ := c.CreateMessagePipe()
	tr, sink := newTrap(t, c)

	id, _ := tr.AddTrigger(a, system.SignalReadable, system.TriggerSignalsSatisfied, 1)
	_, _ = tr.AddTrigger(b, system.SignalReadable, system.TriggerSignalsSatisfied, 2)

	if err := tr.RemoveTrigger(id); err != nil {
		t.Fatal(err)
	}
	ev := sink.next(t)
	if ev.Context != 1 || ev.Result != system.ResultCancelled {
		t.Fatalf("remove event = %+v", ev)
	}
	wantResult(t, tr.RemoveTrigger(id), system.ResultNotFound)

	_ = c.Close(b)
	ev = sink.next(t)
	if ev.Context != 2 || ev.Result != system.ResultCancelled {
		t.Fatalf("close event = %+v", ev)
	}
	sink.none(t)
}

func TestTrap_CancelOnTransfer(t *testing.T) {
	c := newCore(t)
	a, _, _ := c.CreateMessagePipe()
	x, _, _ := c.CreateMessagePipe()
	tr, sink := newTrap(t, c)

	_, _ = tr.AddTrigger(x, system.SignalReadable, system.TriggerSignalsSatisfied, 9)
	if err := c.WriteMessage(a, nil, []system.Handle{x}); err != nil {
		t.Fatal(err)
	}
	ev := sink.next(t)
	if ev.Context != 9 || ev.Result != system.ResultCancelled {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTrap_Errors(t *testing.T) {
	c := newCore(t)
	a, _, _ := c.CreateMessagePipe()
	tr, sink := newTrap(t, c)

	_, err := tr.AddTrigger(999, system.SignalReadable, system.TriggerSignalsSatisfied, 1)
	wantResult(t, err, system.ResultInvalidArgument)
	_, err = tr.AddTrigger(a, system.SignalReadable, system.TriggerCondition(9), 1)
	wantResult(t, err, system.ResultInvalidArgument)

	_, _ = tr.AddTrigger(a, system.SignalReadable, system.TriggerSignalsSatisfied, 1)
	_, err = tr.AddTrigger(a, system.SignalWritable, system.TriggerSignalsSatisfied, 1)
	wantResult(t, err, system.ResultAlreadyExists)

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if ev := sink.next(t); ev.Result != system.ResultCancelled {
		t.Fatalf("event = %+v", ev)
	}
	wantResult(t, tr.Close(), system.ResultInvalidArgument)
	_, err = tr.Arm()
	wantResult(t, err, system.ResultInvalidArgument)
	_, err = tr.AddTrigger(a, system.SignalReadable, system.TriggerSignalsSatisfied, 2)
	wantResult(t, err, system.ResultInvalidArgument)

	_, err = c.CreateTrap(nil)
	wantResult(t, err, system.ResultInvalidArgument)
}

func TestTrap_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	c := newCore(t)
	a, b, _ := c.CreateMessagePipe()

	got := make(chan uint64, 4)
	tr, _ := c.CreateTrap(func(ev system.TrapEvent) {
		if ev.Context == 1 {
			panic("boom")
		}
		got <- ev.Context
	})
	id, _ := tr.AddTrigger(a, system.SignalReadable, system.TriggerSignalsSatisfied, 1)
	_, _ = tr.AddTrigger(b, system.SignalReadable, system.TriggerSignalsSatisfied, 2)

	_ = tr.RemoveTrigger(id)
	_ = c.Close(b)

	select {
	case ctx := <-got:
		if ctx != 2 {
			t.Fatalf("context = %d", ctx)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delivery stopped after handler panic")
	}
}
