package system

import (
	"strconv"
	"strings"
)

// Signals is a set of readiness conditions on a handle.
type Signals uint32

const (
	SignalReadable Signals = 1 << iota
	SignalWritable
	SignalPeerClosed

	SignalNone Signals = 0
)

func (s Signals) String() string {
	if s == SignalNone {
		return "none"
	}
	var parts []string
	if s&SignalReadable != 0 {
		parts = append(parts, "readable")
	}
	if s&SignalWritable != 0 {
		parts = append(parts, "writable")
	}
	if s&SignalPeerClosed != 0 {
		parts = append(parts, "peer-closed")
	}
	if rest := s &^ (SignalReadable | SignalWritable | SignalPeerClosed); rest != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(parts, "|")
}

// SignalsState is a snapshot of a handle's signals. Satisfied signals hold
// now; satisfiable ones may still hold in the future.
type SignalsState struct {
	Satisfied   Signals
	Satisfiable Signals
}

// IsSatisfied reports whether any of s holds.
func (st SignalsState) IsSatisfied(s Signals) bool { return st.Satisfied&s != 0 }

// CanSatisfy reports whether any of s may still hold.
func (st SignalsState) CanSatisfy(s Signals) bool { return st.Satisfiable&s != 0 }
