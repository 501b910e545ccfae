package schema

import (
	"math"
	"reflect"

	"github.com/wippyai/mojo-wire/errors"
)

// NormalizeDefault converts v to the Go type the codec uses for values of
// t: bool, int8 through uint64, float32, float64, or int32 for enums.
// Integers of any Go type are accepted when they fit.
func NormalizeDefault(t Type, v any) (any, error) {
	switch typ := t.(type) {
	case *Enum:
		n, ok := intIn(v, math.MinInt32, math.MaxInt32)
		if !ok {
			return nil, badDefault(t, v)
		}
		if !typ.Extensible && !typ.Contains(int32(n)) {
			return nil, errors.InvalidEnum(errors.PhaseValidate, nil, errors.NoOffset, int32(n), typ.Name)
		}
		return int32(n), nil
	case Leaf:
		return normalizeLeaf(typ.Kind, v)
	default:
		return nil, errors.New(errors.PhaseValidate, errors.KindUnsupported).
			Detail("type %v cannot carry a default value", t).
			Build()
	}
}

func normalizeLeaf(kind LeafKind, v any) (any, error) {
	t := Leaf{Kind: kind}
	switch kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, badDefault(t, v)
		}
		return b, nil
	case KindFloat32, KindFloat64:
		var f float64
		switch x := v.(type) {
		case float32:
			f = float64(x)
		case float64:
			f = x
		default:
			n, ok := intIn(v, math.MinInt64, math.MaxInt64)
			if !ok {
				return nil, badDefault(t, v)
			}
			f = float64(n)
		}
		if kind == KindFloat32 {
			if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
				return nil, errors.Overflow(errors.PhaseValidate, nil, v, "float32")
			}
			return float32(f), nil
		}
		return f, nil
	}

	lo, hi, unsigned := leafRange(kind)
	if unsigned {
		n, ok := uintIn(v, hi)
		if !ok {
			return nil, errors.Overflow(errors.PhaseValidate, nil, v, kind.String())
		}
		switch kind {
		case KindUint8:
			return uint8(n), nil
		case KindUint16:
			return uint16(n), nil
		case KindUint32:
			return uint32(n), nil
		default:
			return n, nil
		}
	}
	n, ok := intIn(v, lo, int64(hi))
	if !ok {
		return nil, errors.Overflow(errors.PhaseValidate, nil, v, kind.String())
	}
	switch kind {
	case KindInt8:
		return int8(n), nil
	case KindInt16:
		return int16(n), nil
	case KindInt32:
		return int32(n), nil
	default:
		return n, nil
	}
}

func leafRange(kind LeafKind) (lo int64, hi uint64, unsigned bool) {
	switch kind {
	case KindInt8:
		return math.MinInt8, math.MaxInt8, false
	case KindUint8:
		return 0, math.MaxUint8, true
	case KindInt16:
		return math.MinInt16, math.MaxInt16, false
	case KindUint16:
		return 0, math.MaxUint16, true
	case KindInt32:
		return math.MinInt32, math.MaxInt32, false
	case KindUint32:
		return 0, math.MaxUint32, true
	case KindUint64:
		return 0, math.MaxUint64, true
	default:
		return math.MinInt64, math.MaxInt64, false
	}
}

func intIn(v any, lo, hi int64) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		return n, n >= lo && n <= hi
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		return int64(n), hi >= 0 && n <= uint64(hi)
	default:
		return 0, false
	}
}

func uintIn(v any, hi uint64) (uint64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		return uint64(n), n >= 0 && uint64(n) <= hi
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		return n, n <= hi
	default:
		return 0, false
	}
}

func badDefault(t Type, v any) error {
	return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
		Expected(t.String()).
		Actual(v).
		Detail("default %v does not fit %v", v, t).
		Build()
}
