// Package system defines the contracts of the native handle layer that
// pipes, buffers and traps are built on.
//
// Everything above this package talks to a Core: an owner of raw handles
// with non-blocking operations that report status as Result values. The only
// notification primitive is the asynchronous Trap. Blocking waits are built
// on top of it by package wait.
package system

// Handle is the raw native identity of a resource. Zero is never valid.
type Handle uint32

// InvalidHandle is the zero Handle.
const InvalidHandle Handle = 0

// IsValid reports whether h is non-zero.
func (h Handle) IsValid() bool { return h != InvalidHandle }

// Core owns raw handles and the objects behind them. Every method returns
// immediately; readiness is observed through a Trap.
type Core interface {
	// Close releases h. Closing an invalid or already closed handle
	// returns ResultInvalidArgument.
	Close(h Handle) error

	// QuerySignals returns the current signal state of h.
	QuerySignals(h Handle) (SignalsState, error)

	// CreateMessagePipe returns the two connected endpoints of a new pipe.
	CreateMessagePipe() (Handle, Handle, error)

	// WriteMessage queues a message on the peer of h. On success the
	// transferred handles are no longer valid in the caller. On failure
	// they are left untouched.
	WriteMessage(h Handle, data []byte, handles []Handle) error

	// ReadMessage dequeues the next message. An empty pipe whose peer is
	// open reports ResultShouldWait.
	ReadMessage(h Handle) ([]byte, []Handle, error)

	// CreateDataPipe returns a producer and consumer handle.
	CreateDataPipe(opts DataPipeOptions) (Handle, Handle, error)

	// WriteData writes whole elements from data and returns the number of
	// bytes accepted.
	WriteData(h Handle, data []byte, flags DataFlags) (int, error)

	// ReadData reads whole elements into buf. With DataQuery it returns
	// the number of readable bytes, and with DataDiscard it drops up to
	// len(buf) bytes without copying.
	ReadData(h Handle, buf []byte, flags DataFlags) (int, error)

	// DiscardData drops up to n bytes, honouring DataAllOrNone.
	DiscardData(h Handle, n int, flags DataFlags) (int, error)

	// CreateSharedBuffer allocates a zeroed buffer of size bytes.
	CreateSharedBuffer(size uint64) (Handle, error)

	// DuplicateBuffer returns a new handle to the same memory.
	DuplicateBuffer(h Handle, readOnly bool) (Handle, error)

	// BufferInfo describes the buffer behind h.
	BufferInfo(h Handle) (BufferInfo, error)

	// MapBuffer maps length bytes of the buffer at offset.
	MapBuffer(h Handle, offset, length uint64) ([]byte, error)

	// UnmapBuffer releases a mapping returned by MapBuffer.
	UnmapBuffer(mapping []byte) error

	// CreateTrap returns a trap delivering events to handler.
	CreateTrap(handler TrapHandler) (Trap, error)
}

// TriggerID identifies a trigger within its trap.
type TriggerID uint64

// TriggerCondition selects which transition of the watched signals fires a
// trigger.
type TriggerCondition uint8

const (
	// TriggerSignalsSatisfied fires when any watched signal becomes
	// satisfied, or when none of them can ever be satisfied again.
	TriggerSignalsSatisfied TriggerCondition = iota
	// TriggerSignalsUnsatisfied fires when no watched signal is satisfied.
	TriggerSignalsUnsatisfied
)

func (c TriggerCondition) String() string {
	switch c {
	case TriggerSignalsSatisfied:
		return "satisfied"
	case TriggerSignalsUnsatisfied:
		return "unsatisfied"
	default:
		return "unknown"
	}
}

// TrapEvent is delivered to a TrapHandler.
//
// Result is ResultOK when the condition was met, ResultFailedPrecondition
// when it can no longer be met, and ResultCancelled when the trigger was
// removed or its handle closed. A cancellation is always the last event for
// its trigger.
type TrapEvent struct {
	Context uint64
	Trigger TriggerID
	State   SignalsState
	Result  Result
}

// TrapHandler receives trap events on a goroutine owned by the Core. It must
// not block and must not call back into the trap.
type TrapHandler func(TrapEvent)

// Trap is the asynchronous registrar. Triggers are added in the disarmed
// state; Arm enables delivery of the next event, after which the trap is
// disarmed again.
type Trap interface {
	// AddTrigger watches signals on h. context is echoed in every event
	// for the trigger.
	AddTrigger(h Handle, signals Signals, cond TriggerCondition, context uint64) (TriggerID, error)

	// RemoveTrigger removes a trigger and delivers its cancellation.
	RemoveTrigger(id TriggerID) error

	// Arm enables the trap. If a trigger's condition already holds, Arm
	// fails with ResultFailedPrecondition and returns the blocking events
	// instead. A trap without triggers fails with ResultNotFound.
	Arm() ([]TrapEvent, error)

	// Close removes every trigger, delivering their cancellations.
	Close() error
}

// DataFlags modify data pipe reads and writes.
type DataFlags uint32

const (
	DataNone DataFlags = 0
	// DataAllOrNone transfers everything or nothing.
	DataAllOrNone DataFlags = 1 << 0
	// DataDiscard consumes bytes without copying them.
	DataDiscard DataFlags = 1 << 1
	// DataQuery reports the readable byte count.
	DataQuery DataFlags = 1 << 2
	// DataPeek copies bytes without consuming them.
	DataPeek DataFlags = 1 << 3
)

// Has reports whether every bit of f is set.
func (d DataFlags) Has(f DataFlags) bool { return d&f == f }

// DataPipeOptions configure CreateDataPipe. A zero ElementSize means 1 and
// a zero Capacity selects the core's default.
type DataPipeOptions struct {
	ElementSize uint32
	Capacity    uint32
}

// BufferInfo describes a shared buffer handle.
type BufferInfo struct {
	Size     uint64
	ReadOnly bool
}
