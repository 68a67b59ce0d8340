// Package faults tags errors with a retry classification so that callers can
// tell a store outage apart from a request that will never succeed.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Transient failures may succeed when retried.
	Transient Kind = iota
	// Permanent failures will fail the same way on every attempt.
	Permanent
	// NotFound means the addressed document does not exist.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrNotFound is returned by document reads when the document is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks caller mistakes that no retry can fix.
	ErrInvalidInput = errors.New("invalid input")
)

// Error wraps a cause with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transientf builds a transient error.
func Transientf(op, format string, args ...any) error {
	return &Error{Kind: Transient, Op: op, Err: fmt.Errorf(format, args...)}
}

// Permanentf builds a permanent error.
func Permanentf(op, format string, args ...any) error {
	return &Error{Kind: Permanent, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the classification of err. Untagged errors are transient,
// except for the package sentinels.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrInvalidInput):
		return Permanent
	}
	return Transient
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == Transient
}

// CredentialError reports missing or malformed document store credentials.
type CredentialError struct {
	Source string
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	msg := fmt.Sprintf("invalid document store credentials (%s): %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }
