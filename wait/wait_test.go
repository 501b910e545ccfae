package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wippyai/mojo-wire/system"
	"github.com/wippyai/mojo-wire/system/memsys"
)

func newCore(t *testing.T) *memsys.Core {
	t.Helper()
	c := memsys.New(memsys.DefaultOptions())
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWait_AlreadySatisfied(t *testing.T) {
	c := newCore(t)
	a, _, _ := c.CreateMessagePipe()

	st, err := Wait(testContext(t), c, a, system.SignalWritable)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !st.IsSatisfied(system.SignalWritable) {
		t.Fatalf("state = %+v", st)
	}
}

func TestWait_BecomesSatisfied(t *testing.T) {
	c := newCore(t)
	a, b, _ := c.CreateMessagePipe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = c.WriteMessage(a, []byte("x"), nil)
	}()

	st, err := Wait(testContext(t), c, b, system.SignalReadable)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !st.IsSatisfied(system.SignalReadable) {
		t.Fatalf("state = %+v", st)
	}
}

func TestWait_Unsatisfiable(t *testing.T) {
	c := newCore(t)
	a, b, _ := c.CreateMessagePipe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = c.Close(a)
	}()

	st, err := Wait(testContext(t), c, b, system.SignalReadable)
	if !errors.Is(err, system.ResultFailedPrecondition) {
		t.Fatalf("Wait error = %v", err)
	}
	if !st.IsSatisfied(system.SignalPeerClosed) {
		t.Fatalf("state = %+v", st)
	}
}

func TestWait_HandleClosed(t *testing.T) {
	c := newCore(t)
	_, b, _ := c.CreateMessagePipe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = c.Close(b)
	}()

	_, err := Wait(testContext(t), c, b, system.SignalReadable)
	if !errors.Is(err, system.ResultCancelled) {
		t.Fatalf("Wait error = %v", err)
	}
}

func TestWait_InvalidHandle(t *testing.T) {
	c := newCore(t)
	_, err := Wait(testContext(t), c, 12345, system.SignalReadable)
	if !errors.Is(err, system.ResultInvalidArgument) {
		t.Fatalf("Wait error = %v", err)
	}
}

func TestWait_Context(t *testing.T) {
	c := newCore(t)
	_, b, _ := c.CreateMessagePipe()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := Wait(ctx, c, b, system.SignalReadable)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait error = %v", err)
	}

	done, cancelDone := context.WithCancel(context.Background())
	cancelDone()
	if _, err := Wait(done, c, b, system.SignalReadable); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait on cancelled context = %v", err)
	}
}
