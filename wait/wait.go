package wait

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/system"
)

// Wait blocks until any of signals is satisfied on h, can never be
// satisfied, or h is closed. It returns nil, ResultFailedPrecondition or
// ResultCancelled respectively, together with the last observed state. An
// invalid handle fails with ResultInvalidArgument and a finished context
// returns ctx.Err().
func Wait(ctx context.Context, core system.Core, h system.Handle, signals system.Signals) (system.SignalsState, error) {
	if err := ctx.Err(); err != nil {
		return system.SignalsState{}, err
	}

	var (
		mu    sync.Mutex
		cond  = sync.NewCond(&mu)
		event *system.TrapEvent
	)
	record := func(ev system.TrapEvent) {
		mu.Lock()
		if event == nil {
			event = &ev
		}
		cond.Broadcast()
		mu.Unlock()
	}

	trap, err := core.CreateTrap(record)
	if err != nil {
		return system.SignalsState{}, err
	}
	defer func() {
		if err := trap.Close(); err != nil {
			Logger().Warn("close wait trap", zap.Uint32("handle", uint32(h)), zap.Error(err))
		}
	}()

	if _, err := trap.AddTrigger(h, signals, system.TriggerSignalsSatisfied, 0); err != nil {
		return system.SignalsState{}, err
	}

	blocking, err := trap.Arm()
	switch {
	case err == nil:
	case errors.Is(err, system.ResultFailedPrecondition) && len(blocking) > 0:
		record(blocking[0])
	default:
		return system.SignalsState{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		cond.Broadcast()
		mu.Unlock()
	})
	defer stop()

	mu.Lock()
	defer mu.Unlock()
	for event == nil && ctx.Err() == nil {
		cond.Wait()
	}
	if event == nil {
		return system.SignalsState{}, ctx.Err()
	}
	return event.State, event.Result.Err()
}
