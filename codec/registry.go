package codec

import (
	"sort"
	"sync"

	"github.com/wippyai/mojo-wire/codec/internal/layout"
	"github.com/wippyai/mojo-wire/errors"
	"github.com/wippyai/mojo-wire/schema"
)

// Registry holds packed struct layouts keyed by schema identity. A registry
// is created explicitly, filled at schema load time and shared by encoders
// and decoders; it is safe for concurrent use.
type Registry struct {
	layouts map[*schema.Struct]*layout.Struct
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{layouts: make(map[*schema.Struct]*layout.Struct)}
}

// Register validates s and packs it together with every struct reachable
// from it. Registering a struct twice is a no-op.
func (r *Registry) Register(s *schema.Struct) error {
	if s == nil {
		return errors.InvalidInput(errors.PhaseCompile, "nil struct")
	}
	r.mu.RLock()
	_, ok := r.layouts[s]
	r.mu.RUnlock()
	if ok {
		return nil
	}

	if err := schema.Validate(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.packReachable(s, make(map[schema.Type]bool))
	return nil
}

// packReachable must be called with r.mu held.
func (r *Registry) packReachable(t schema.Type, seen map[schema.Type]bool) {
	switch typ := t.(type) {
	case *schema.Struct:
		if seen[typ] {
			return
		}
		seen[typ] = true
		if _, ok := r.layouts[typ]; !ok {
			r.layouts[typ] = layout.Pack(typ)
		}
		for _, f := range typ.Fields {
			r.packReachable(f.Type, seen)
		}
	case *schema.Union:
		if seen[typ] {
			return
		}
		seen[typ] = true
		for _, v := range typ.Variants {
			r.packReachable(v.Type, seen)
		}
	case *schema.Array:
		r.packReachable(typ.Elem, seen)
	case *schema.Map:
		r.packReachable(typ.Value, seen)
	}
}

// Len returns the number of packed structs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.layouts)
}

// Reset drops every cached layout.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layouts = make(map[*schema.Struct]*layout.Struct)
}

// packed returns the layout of a struct reached while walking a registered
// schema. Unknown structs are packed on demand.
func (r *Registry) packed(s *schema.Struct) *layout.Struct {
	r.mu.RLock()
	l, ok := r.layouts[s]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.layouts[s]; ok {
		return l
	}
	l = layout.Pack(s)
	r.layouts[s] = l
	return l
}

// FieldLayout is the placement of one field. Offset is relative to the
// start of the struct payload.
type FieldLayout struct {
	Name       string
	Type       string
	Kind       string
	Offset     uint32
	Size       uint32
	MinVersion uint32
	Bit        uint8
	Nullable   bool
	// HasValue marks the presence bit of the nullable scalar field Name.
	HasValue bool
}

// VersionSize is the encoded size of one struct version, header included.
type VersionSize struct {
	Version uint32
	Size    uint32
}

// Layout describes how a struct is laid out on the wire.
type Layout struct {
	Name        string
	Fields      []FieldLayout
	Versions    []VersionSize
	Size        uint32
	PayloadSize uint32
}

// Layout registers s if needed and returns its layout with fields in wire
// order.
func (r *Registry) Layout(s *schema.Struct) (*Layout, error) {
	if err := r.Register(s); err != nil {
		return nil, err
	}
	l := r.packed(s)

	out := &Layout{
		Name:        s.Name,
		Size:        l.Size,
		PayloadSize: l.PayloadSize,
	}
	for _, i := range l.Order {
		f := s.Fields[i]
		slot := l.Slots[i]
		if flag := slot.HasValue; flag != nil {
			out.Fields = append(out.Fields, FieldLayout{
				Name:       f.Name,
				Type:       schema.Bool.String(),
				Kind:       flag.Kind.String(),
				Offset:     flag.Offset,
				Size:       flag.Size,
				Bit:        flag.Bit,
				MinVersion: f.MinVersion,
				HasValue:   true,
			})
		}
		out.Fields = append(out.Fields, FieldLayout{
			Name:       f.Name,
			Type:       f.Type.String(),
			Kind:       slot.Kind.String(),
			Offset:     slot.Offset,
			Size:       slot.Size,
			Bit:        slot.Bit,
			MinVersion: f.MinVersion,
			Nullable:   f.Nullable,
		})
	}
	// Presence bits can sit anywhere relative to their values.
	sort.SliceStable(out.Fields, func(a, b int) bool {
		fa, fb := out.Fields[a], out.Fields[b]
		if fa.Offset != fb.Offset {
			return fa.Offset < fb.Offset
		}
		return fa.Bit < fb.Bit
	})
	for _, v := range l.Versions {
		out.Versions = append(out.Versions, VersionSize{Version: v.Version, Size: v.Size})
	}
	return out, nil
}
