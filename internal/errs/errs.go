// Package errs classifies the finite set of failure kinds the indexer core
// can surface, per the error handling design in the spec. Every error that
// crosses a component boundary is wrapped with a Kind so callers can branch
// on classification instead of string-matching messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the finite classification of a failure.
type Kind int

const (
	// KindUnknown is never assigned deliberately; it only appears if a raw
	// error reaches KindOf without having been wrapped.
	KindUnknown Kind = iota
	// KindConfig covers unknown families, invalid addresses, window conflicts.
	// Fatal at startup.
	KindConfig
	// KindTransport covers rate-limit, gateway, timeout, connection faults.
	// Retryable by the retry policy.
	KindTransport
	// KindDecode covers malformed payloads (unknown topics are not errors —
	// they are a nil decode result, not a KindDecode failure).
	KindDecode
	// KindAttribution covers a decoded event whose emitting address disagrees
	// with the registry's expectation for the scan.
	KindAttribution
	// KindStorage covers constraint violations and I/O failures. Fatal for
	// the chunk that produced it.
	KindStorage
	// KindCancellation covers cooperative cancellation. Never retried.
	KindCancellation
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindAttribution:
		return "attribution"
	case KindStorage:
		return "storage"
	case KindCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// Error is a classified, wrapped failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches a Kind and a message to err. A nil err yields a plain nil
// error (not a nil *Error inside the interface), matching the teacher's
// utils.Wrap contract.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf is Wrap with fmt.Sprintf-style formatting of the message.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	return Wrap(kind, err, fmt.Sprintf(format, args...))
}

// New creates a classified error with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the classification of err, or KindUnknown if err was never
// classified (e.g. it originates outside this package).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
