// Package errs holds the core's typed error kinds (spec §7), built with
// github.com/pkg/errors the way the teacher's cmn.NewErrXXX constructors
// (cmn.NewErrXactUsePrev, cmn.NewErrAborted in xact/xs/tcb.go) wrap a
// sentinel with call-site context.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error per spec.md §7.
type Kind int

const (
	InvalidIndexSpace Kind = iota
	InvalidRange
	PartitioningMismatch
	MissingSource
	UpdateConflict
	OutOfMemory
	PeerGone
	BackendFailure
	InvalidFlow
)

func (k Kind) String() string {
	switch k {
	case InvalidIndexSpace:
		return "InvalidIndexSpace"
	case InvalidRange:
		return "InvalidRange"
	case PartitioningMismatch:
		return "PartitioningMismatch"
	case MissingSource:
		return "MissingSource"
	case UpdateConflict:
		return "UpdateConflict"
	case OutOfMemory:
		return "OutOfMemory"
	case PeerGone:
		return "PeerGone"
	case BackendFailure:
		return "BackendFailure"
	case InvalidFlow:
		return "InvalidFlow"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried through the core. It keeps
// enough structure (Kind, optional Rank/Code) for callers to branch on
// with errors.As, while still satisfying the plain error interface.
type Error struct {
	Kind Kind
	Msg  string
	Rank int // offending process id, when applicable (PeerGone)
	Code int // backend-supplied code, when applicable (BackendFailure)
	err  error
}

func (e *Error) Error() string {
	if e.Rank >= 0 && e.Kind == PeerGone {
		return fmt.Sprintf("%s: %s (peer %d)", e.Kind, e.Msg, e.Rank)
	}
	if e.Kind == BackendFailure && e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the same Kind, so errors.Is(err,
// errs.ErrOutOfMemory) style checks work against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// sentinels usable with errors.Is; they carry no message of their own.
var (
	ErrInvalidIndexSpace     = &Error{Kind: InvalidIndexSpace}
	ErrInvalidRange          = &Error{Kind: InvalidRange}
	ErrPartitioningMismatch  = &Error{Kind: PartitioningMismatch}
	ErrMissingSource         = &Error{Kind: MissingSource}
	ErrUpdateConflict        = &Error{Kind: UpdateConflict}
	ErrOutOfMemory           = &Error{Kind: OutOfMemory}
	ErrPeerGone              = &Error{Kind: PeerGone}
	ErrBackendFailure        = &Error{Kind: BackendFailure}
	ErrInvalidFlow           = &Error{Kind: InvalidFlow}
)

func wrap(k Kind, rank, code int, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: k, Msg: msg, Rank: rank, Code: code, err: errors.WithStack(errors.New(msg))}
}

func NewInvalidIndexSpace(format string, args ...any) *Error {
	return wrap(InvalidIndexSpace, -1, 0, format, args...)
}

func NewInvalidRange(format string, args ...any) *Error {
	return wrap(InvalidRange, -1, 0, format, args...)
}

func NewPartitioningMismatch(format string, args ...any) *Error {
	return wrap(PartitioningMismatch, -1, 0, format, args...)
}

func NewMissingSource(idx string) *Error {
	return wrap(MissingSource, -1, 0, "no source owns index %s under Preserve flow", idx)
}

func NewUpdateConflict(key string) *Error {
	return wrap(UpdateConflict, -1, 0, "key %q: conflicting concurrent updates", key)
}

func NewOutOfMemory(format string, args ...any) *Error {
	return wrap(OutOfMemory, -1, 0, format, args...)
}

func NewPeerGone(rank int) *Error {
	return wrap(PeerGone, rank, 0, "peer %d is gone", rank)
}

func NewBackendFailure(code int, format string, args ...any) *Error {
	return wrap(BackendFailure, -1, code, format, args...)
}

func NewInvalidFlow(format string, args ...any) *Error {
	return wrap(InvalidFlow, -1, 0, format, args...)
}

// Wrap attaches additional context to an existing error without losing its
// Kind when it is one of ours, similar to cmn.NewErrAborted wrapping an
// inner cause.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
