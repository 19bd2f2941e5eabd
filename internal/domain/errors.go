package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Every failure surfaced by the board
// service wraps exactly one of these.
var (
	ErrValidation   = errors.New("domain: validation failed")
	ErrUnauthorized = errors.New("domain: unauthorized")
	ErrForbidden    = errors.New("domain: forbidden")
	ErrNotFound     = errors.New("domain: not found")
	ErrConflict     = errors.New("domain: conflict")
)

// Error is a domain failure with a message that is safe to show to clients.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Invalid is shorthand for a validation failure.
func Invalid(format string, args ...any) error {
	return Errorf(ErrValidation, format, args...)
}

// Message extracts the client-safe message from err, or fallback when err
// carries none.
func Message(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return fallback
}
