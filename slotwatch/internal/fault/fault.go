// Package fault classifies everything that can go wrong during a poll into a
// small closed set of kinds. The poll loop switches on the kind; nothing else
// inspects error strings.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the failure class of an error.
type Kind int

const (
	Unknown           Kind = iota // Not classified.
	Timeout                       // A bounded wait expired.
	StructureMismatch             // The page did not have the expected shape.
	Transport                     // A network delivery failed (webhook, browser connect).
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case StructureMismatch:
		return "structure_mismatch"
	case Transport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op. A nil err still yields an error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap classifies err and attaches op. Errors already carrying a kind keep it.
// Returns nil for a nil err.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf reports the kind of err. Deadline expiry anywhere in the chain
// counts as Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != Unknown {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Unknown
}

// Is reports whether err is of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
