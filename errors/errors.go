package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCompile  Phase = "compile"  // schema packing and registration
	PhaseEncode   Phase = "encode"   // value to wire bytes
	PhaseDecode   Phase = "decode"   // wire bytes to value
	PhaseValidate Phase = "validate" // schema validation
	PhaseParse    Phase = "parse"    // schema sources (TOML, WIT)
	PhaseLoad     Phase = "load"     // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNotEnoughData          Kind = "not_enough_data"
	KindTooMuchData            Kind = "too_much_data"
	KindInvalidPointer         Kind = "invalid_pointer"
	KindWrongPointer           Kind = "wrong_pointer"
	KindInvalidSize            Kind = "invalid_size"
	KindWrongSize              Kind = "wrong_size"
	KindInvalidDiscriminant    Kind = "invalid_discriminant"
	KindMissingRequestID       Kind = "missing_request_id"
	KindInvalidFlags           Kind = "invalid_flags"
	KindUnexpectedStructHeader Kind = "unexpected_struct_header"
	KindUnexpectedNull         Kind = "unexpected_null"
	KindInvalidHandle          Kind = "invalid_handle"
	KindInvalidEnum            Kind = "invalid_enum"
	KindInvalidUTF8            Kind = "invalid_utf8"
	KindDepthExceeded          Kind = "depth_exceeded"
	KindTypeMismatch           Kind = "type_mismatch"
	KindOverflow               Kind = "overflow"
	KindInvalidData            Kind = "invalid_data"
	KindInvalidInput           Kind = "invalid_input"
	KindUnsupported            Kind = "unsupported"
	KindNotFound               Kind = "not_found"
	KindDuplicate              Kind = "duplicate"
)

// NoOffset marks an error that is not tied to a byte position.
const NoOffset int64 = -1

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Expected any
	Actual   any
	Cause    error
	Phase    Phase
	Kind     Kind
	Context  string
	Detail   string
	Path     []string
	Offset   int64
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Offset >= 0 {
		b.WriteString(" (offset ")
		b.WriteString(strconv.FormatInt(e.Offset, 10))
		b.WriteByte(')')
	}

	if e.Context != "" {
		b.WriteString(" in ")
		b.WriteString(e.Context)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// As is errors.As from the standard library, re-exported so callers that
// import this package under the name errors keep access to it.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: NoOffset,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Offset sets the failing byte offset
func (b *Builder) Offset(off uint64) *Builder {
	b.err.Offset = int64(off)
	return b
}

// Context names the structure being read when the error occurred
func (b *Builder) Context(ctx string) *Builder {
	b.err.Context = ctx
	return b
}

// Expected sets the expected value
func (b *Builder) Expected(v any) *Builder {
	b.err.Expected = v
	return b
}

// Actual sets the observed value
func (b *Builder) Actual(v any) *Builder {
	b.err.Actual = v
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Decode-side constructors. Each one is tied to the byte offset where
// validation failed.

// NotEnoughData reports a read of need bytes where only have remain.
func NotEnoughData(path []string, offset uint64, context string, need, have uint64) *Error {
	return &Error{
		Phase:    PhaseDecode,
		Kind:     KindNotEnoughData,
		Path:     path,
		Offset:   int64(offset),
		Context:  context,
		Expected: need,
		Actual:   have,
		Detail:   fmt.Sprintf("need %d bytes, have %d", need, have),
	}
}

// TooMuchData reports bytes left over after the message was fully decoded.
func TooMuchData(offset, remaining uint64) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindTooMuchData,
		Offset: int64(offset),
		Value:  remaining,
		Detail: fmt.Sprintf("%d trailing bytes", remaining),
	}
}

// InvalidPointer reports a pointer with a bad magnitude or alignment.
func InvalidPointer(path []string, offset, value uint64) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidPointer,
		Path:   path,
		Offset: int64(offset),
		Value:  value,
		Detail: fmt.Sprintf("pointer value %d is not a multiple of 8 or is below 8", value),
	}
}

// WrongPointer reports a pointer that does not resolve to the next unclaimed
// byte. Expected and actual are absolute buffer offsets.
func WrongPointer(path []string, offset, expected, actual uint64) *Error {
	return &Error{
		Phase:    PhaseDecode,
		Kind:     KindWrongPointer,
		Path:     path,
		Offset:   int64(offset),
		Expected: expected,
		Actual:   actual,
		Detail:   fmt.Sprintf("pointer resolves to %d, next object expected at %d", actual, expected),
	}
}

// InvalidSize reports a size field that can never be valid.
func InvalidSize(path []string, offset, value uint64) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidSize,
		Path:   path,
		Offset: int64(offset),
		Value:  value,
		Detail: fmt.Sprintf("invalid size %d", value),
	}
}

// WrongSize reports a size or count that disagrees with the schema.
func WrongSize(path []string, offset uint64, context string, expected, actual uint64) *Error {
	return &Error{
		Phase:    PhaseDecode,
		Kind:     KindWrongSize,
		Path:     path,
		Offset:   int64(offset),
		Context:  context,
		Expected: expected,
		Actual:   actual,
		Detail:   fmt.Sprintf("expected %d, got %d", expected, actual),
	}
}

// InvalidDiscriminant creates an invalid discriminant error for unions
func InvalidDiscriminant(path []string, offset uint64, disc uint32) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidDiscriminant,
		Path:   path,
		Offset: int64(offset),
		Value:  disc,
		Detail: fmt.Sprintf("unknown union tag %d", disc),
	}
}

// UnexpectedNull reports a null pointer or handle in a non-nullable slot.
func UnexpectedNull(phase Phase, path []string, offset int64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnexpectedNull,
		Path:   path,
		Offset: offset,
		Detail: "null value in non-nullable field",
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(path []string, offset uint64, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Offset: int64(offset),
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidEnum creates an invalid enum value error
func InvalidEnum(phase Phase, path []string, offset int64, value int32, enumType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEnum,
		Path:   path,
		Offset: offset,
		Value:  value,
		Detail: fmt.Sprintf("invalid enum value %d for %s", value, enumType),
	}
}

// Encode-side and schema constructors.

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, wireType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Offset: NoOffset,
		Detail: fmt.Sprintf("Go type %s, wire type %s", goType, wireType),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Offset: NoOffset,
		Value:  value,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Offset: NoOffset,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Offset: NoOffset,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Offset: NoOffset,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Offset: NoOffset,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Load creates a configuration loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Offset: NoOffset,
		Detail: detail,
		Cause:  cause,
	}
}
