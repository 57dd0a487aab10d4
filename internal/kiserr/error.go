package kiserr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is the wrapped error type surfaced through command callbacks,
// DATASOURCE_ERROR events, and HTTP responses. It carries a Kind so callers
// can make retry/reopen decisions without parsing text.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause supports github.com/pkg/errors's errors.Cause().
func (e *Error) Cause() error { return e.cause }

// KindOf extracts the Kind from err if it is (or wraps) a *Error, defaulting
// to KindUnknown otherwise.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return KindUnknown
}
