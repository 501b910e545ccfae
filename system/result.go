package system

import "strconv"

// Result is a status code returned by Core and Trap operations. Non-OK
// values are returned as errors and compare with errors.Is:
//
//	if errors.Is(err, system.ResultShouldWait) { ... }
type Result uint32

const (
	ResultOK Result = iota
	ResultCancelled
	ResultUnknown
	ResultInvalidArgument
	ResultDeadlineExceeded
	ResultNotFound
	ResultAlreadyExists
	ResultPermissionDenied
	ResultResourceExhausted
	ResultFailedPrecondition
	ResultAborted
	ResultOutOfRange
	ResultUnimplemented
	ResultInternal
	ResultUnavailable
	ResultDataLoss
	ResultBusy
	ResultShouldWait
)

var resultNames = [...]string{
	ResultOK:                 "ok",
	ResultCancelled:          "cancelled",
	ResultUnknown:            "unknown",
	ResultInvalidArgument:    "invalid argument",
	ResultDeadlineExceeded:   "deadline exceeded",
	ResultNotFound:           "not found",
	ResultAlreadyExists:      "already exists",
	ResultPermissionDenied:   "permission denied",
	ResultResourceExhausted:  "resource exhausted",
	ResultFailedPrecondition: "failed precondition",
	ResultAborted:            "aborted",
	ResultOutOfRange:         "out of range",
	ResultUnimplemented:      "unimplemented",
	ResultInternal:           "internal",
	ResultUnavailable:        "unavailable",
	ResultDataLoss:           "data loss",
	ResultBusy:               "busy",
	ResultShouldWait:         "should wait",
}

func (r Result) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "result(" + strconv.FormatUint(uint64(r), 10) + ")"
}

// Error implements error.
func (r Result) Error() string { return r.String() }

// Err returns nil for ResultOK and r otherwise.
func (r Result) Err() error {
	if r == ResultOK {
		return nil
	}
	return r
}
