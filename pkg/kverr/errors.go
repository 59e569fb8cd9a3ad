// Package kverr defines the closed set of failure kinds shared by the
// storage engine, wire codec, worker pool, and network server.
package kverr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the fixed failure categories an error belongs to.
type Kind int

const (
	// Io wraps an underlying file or socket failure.
	Io Kind = iota
	// Codec marks malformed JSON or a malformed frame on the wire.
	Codec
	// KeyNotFound marks a remove against a key the index has no entry for. A
	// get of such a key is not an error: it reports the key as absent.
	KeyNotFound
	// UnexpectedRecord marks a lookup that landed on a record of the wrong kind
	// (a Set lookup resolving to a Remove record) — this indicates log corruption.
	UnexpectedRecord
	// Utf8 marks non-UTF-8 bytes found where a text value was expected.
	Utf8
	// PoolBuild marks failure to construct a worker pool.
	PoolBuild
	// Remote wraps an error message a server returned to a client.
	Remote
	// Other is the catch-all for anything not covered above.
	Other
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "Io"
	case Codec:
		return "Codec"
	case KeyNotFound:
		return "KeyNotFound"
	case UnexpectedRecord:
		return "UnexpectedRecord"
	case Utf8:
		return "Utf8"
	case PoolBuild:
		return "PoolBuild"
	case Remote:
		return "Remote"
	default:
		return "Other"
	}
}

// Error is the single error type every component in this module returns.
// It carries a Kind so callers can branch on failure category without
// string-matching, and an optional wrapped cause for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error around an existing error, preserving it for Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf reports the Kind of err, or Other if err is nil or not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return Other
	}
	return Other
}

// Is reports whether err is a kverr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
