package system

import (
	"errors"
	"fmt"
	"testing"
)

func TestResult_Error(t *testing.T) {
	wrapped := fmt.Errorf("read: %w", ResultShouldWait)
	if !errors.Is(wrapped, ResultShouldWait) {
		t.Fatal("errors.Is should match a wrapped Result")
	}
	if errors.Is(wrapped, ResultNotFound) {
		t.Fatal("errors.Is matched the wrong Result")
	}

	var r Result
	if !errors.As(wrapped, &r) || r != ResultShouldWait {
		t.Fatalf("errors.As = %v", r)
	}

	if ResultOK.Err() != nil {
		t.Error("ResultOK.Err() should be nil")
	}
	if ResultBusy.Err() != ResultBusy {
		t.Error("ResultBusy.Err() should be ResultBusy")
	}
}

func TestResult_String(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{ResultOK, "ok"},
		{ResultFailedPrecondition, "failed precondition"},
		{ResultShouldWait, "should wait"},
		{Result(99), "result(99)"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", uint32(tt.r), got, tt.want)
		}
	}
}

func TestSignals(t *testing.T) {
	tests := []struct {
		s    Signals
		want string
	}{
		{SignalNone, "none"},
		{SignalReadable, "readable"},
		{SignalReadable | SignalPeerClosed, "readable|peer-closed"},
		{SignalWritable | 1<<8, "writable|0x100"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}

	st := SignalsState{Satisfied: SignalWritable, Satisfiable: SignalWritable | SignalPeerClosed}
	if !st.IsSatisfied(SignalReadable | SignalWritable) {
		t.Error("writable should satisfy readable|writable")
	}
	if st.CanSatisfy(SignalReadable) {
		t.Error("readable is not satisfiable")
	}
}

func TestHandle_IsValid(t *testing.T) {
	if InvalidHandle.IsValid() {
		t.Error("zero handle reported valid")
	}
	if !Handle(7).IsValid() {
		t.Error("non-zero handle reported invalid")
	}
}
