package ptreedb

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why an operation failed.
type ErrorCode int

const (
	// InvalidArgument covers bad keys, bad flags, bad page sizes.
	InvalidArgument ErrorCode = iota + 1
	// NotFound covers a lookup miss.
	NotFound
	// Busy means a write transaction could not acquire the exclusive
	// file lock because another writer holds it.
	Busy
	// Stale means the most recently observed meta page is a
	// tombstone: a compactor replaced this file out from under us.
	Stale
	// IOError covers read/write/fsync/truncate/stat/rename failures.
	IOError
	// NoMemory covers allocation failures.
	NoMemory
	// Corrupt covers checksum or structural mismatches.
	Corrupt
	// Perm covers a mutating call made against a read-only
	// transaction.
	Perm
)

func (c ErrorCode) String() string {
	switch c {
	case InvalidArgument:
		return "invalid argument"
	case NotFound:
		return "not found"
	case Busy:
		return "busy"
	case Stale:
		return "stale"
	case IOError:
		return "io error"
	case NoMemory:
		return "no memory"
	case Corrupt:
		return "corrupt"
	case Perm:
		return "permission denied"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every ptreedb operation that can
// fail. Wrap a lower-level cause (e.g. an *os.PathError) in Err so
// callers can still errors.As/Is through to it.
type Error struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ptreedb: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("ptreedb: %s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is (or wraps) an *Error with the same
// Code, so callers can write errors.Is(err, ptreedb.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func newErr(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func wrapErr(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// Sentinel errors for errors.Is comparisons. Only Code is compared.
var (
	ErrInvalidArgument = &Error{Code: InvalidArgument, Msg: "invalid argument"}
	ErrNotFound        = &Error{Code: NotFound, Msg: "key not found"}
	ErrBusy            = &Error{Code: Busy, Msg: "writer busy"}
	ErrStale           = &Error{Code: Stale, Msg: "stale meta (database replaced)"}
	ErrCorrupt         = &Error{Code: Corrupt, Msg: "corrupt database"}
	ErrPerm            = &Error{Code: Perm, Msg: "operation not permitted on this transaction"}
)
