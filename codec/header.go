package codec

import (
	"github.com/wippyai/mojo-wire/codec/internal/wire"
	"github.com/wippyai/mojo-wire/errors"
)

// MessageFlags are the header flag bits.
type MessageFlags uint32

const (
	FlagExpectsResponse MessageFlags = 1 << 0
	FlagIsResponse      MessageFlags = 1 << 1
	FlagIsSync          MessageFlags = 1 << 2
	FlagNoInterrupt     MessageFlags = 1 << 3

	knownFlags = FlagExpectsResponse | FlagIsResponse | FlagIsSync | FlagNoInterrupt
)

// Has reports whether every bit of f is set.
func (m MessageFlags) Has(f MessageFlags) bool {
	return m&f == f
}

// Header sizes per version.
const (
	HeaderSizeV0 = 24
	HeaderSizeV1 = 32
	HeaderSizeV2 = 48
	HeaderSizeV3 = 56
)

const (
	offInterfaceID  = 8
	offName         = 12
	offFlags        = 16
	offRequestID    = 24
	offPayload      = 32
	offInterfaceIDs = 40
	offCreation     = 48
)

var headerSizes = [...]uint32{HeaderSizeV0, HeaderSizeV1, HeaderSizeV2, HeaderSizeV3}

// MessageHeader is the versioned header in front of every message.
//
//	v0  24 bytes  interface_id, name, flags
//	v1  32 bytes  + request_id
//	v2  48 bytes  + payload pointer, payload_interface_ids pointer
//	v3  56 bytes  + creation_timeticks
//
// On encode the smallest version able to carry the set fields is chosen;
// on decode Version reports what was received.
type MessageHeader struct {
	InterfaceIDs      []uint32
	RequestID         uint64
	CreationTimeTicks int64
	Version           uint32
	InterfaceID       uint32
	Name              uint32
	Flags             MessageFlags
}

// ExpectsResponse reports whether the sender waits for a reply.
func (h MessageHeader) ExpectsResponse() bool { return h.Flags.Has(FlagExpectsResponse) }

// IsResponse reports whether the message answers an earlier request.
func (h MessageHeader) IsResponse() bool { return h.Flags.Has(FlagIsResponse) }

// minVersion returns the smallest header version that can carry h.
func (h MessageHeader) minVersion() uint32 {
	switch {
	case h.CreationTimeTicks != 0:
		return 3
	case h.InterfaceIDs != nil:
		return 2
	case h.Flags&(FlagExpectsResponse|FlagIsResponse) != 0 || h.RequestID != 0:
		return 1
	default:
		return 0
	}
}

// checkFlags validates flags against a header version.
func checkFlags(phase errors.Phase, flags MessageFlags, version uint32) error {
	if flags&^knownFlags != 0 {
		return errors.New(phase, errors.KindInvalidFlags).
			Offset(offFlags).
			Value(uint32(flags)).
			Detail("unknown flag bits %#x", uint32(flags&^knownFlags)).
			Build()
	}
	if flags.Has(FlagExpectsResponse | FlagIsResponse) {
		return errors.New(phase, errors.KindInvalidFlags).
			Offset(offFlags).
			Value(uint32(flags)).
			Detail("expects-response and is-response are mutually exclusive").
			Build()
	}
	if flags&(FlagExpectsResponse|FlagIsResponse) != 0 && version < 1 {
		return errors.New(phase, errors.KindMissingRequestID).
			Offset(offFlags).
			Value(uint32(flags)).
			Detail("response flags require header version 1 or later, got %d", version).
			Build()
	}
	return nil
}

// parseHeader reads and validates the header fields at the start of the
// buffer. Pointer fields are returned raw for the decoder to resolve.
func parseHeader(r *wire.Reader) (MessageHeader, wire.StructHeader, error) {
	var h MessageHeader
	sh, ok := r.StructHeader(0)
	if !ok {
		return h, sh, errors.NotEnoughData(nil, 0, "message header", wire.HeaderSize, r.Len())
	}

	want := HeaderSizeV3
	if sh.Version < uint32(len(headerSizes)) {
		want = int(headerSizes[sh.Version])
	}
	exact := sh.Version < uint32(len(headerSizes))
	if (exact && sh.Size != uint32(want)) || (!exact && sh.Size < uint32(want)) || sh.Size%wire.Alignment != 0 {
		return h, sh, errors.New(errors.PhaseDecode, errors.KindUnexpectedStructHeader).
			Offset(0).
			Context("message header").
			Expected(want).
			Actual(sh.Size).
			Detail("header version %d has size %d", sh.Version, sh.Size).
			Build()
	}
	if !r.Has(0, uint64(sh.Size)) {
		return h, sh, errors.NotEnoughData(nil, 0, "message header", uint64(sh.Size), r.Len())
	}

	h.Version = sh.Version
	h.InterfaceID, _ = r.U32(offInterfaceID)
	h.Name, _ = r.U32(offName)
	flags, _ := r.U32(offFlags)
	h.Flags = MessageFlags(flags)
	if err := checkFlags(errors.PhaseDecode, h.Flags, h.Version); err != nil {
		return h, sh, err
	}
	if h.Version >= 1 {
		h.RequestID, _ = r.U64(offRequestID)
	}
	if h.Version >= 3 {
		ticks, _ := r.U64(offCreation)
		h.CreationTimeTicks = int64(ticks)
	}
	return h, sh, nil
}
