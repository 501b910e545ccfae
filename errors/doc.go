// Package errors provides structured error types for the mojo-wire module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Decode errors additionally carry the byte offset at which validation failed and,
// where meaningful, the expected and actual values:
//
//	[decode] wrong_pointer at Request.items (offset 24): expected relative offset 16, got 24
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInvalidHandle).
//		Path("Request", "pipe").
//		Offset(40).
//		Detail("handle index %d out of range", idx).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.WrongPointer(path, off, expected, actual)
//	err := errors.NotEnoughData(path, off, "array header", 8, 3)
//
// All errors implement the standard error interface and support errors.Is/As.
// errors.Is matches on Phase and Kind; IsKind matches on Kind alone.
package errors
