package adapter

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a session failure by how the session must react.
type ErrorKind int

const (
	// KindAuthFailure: credentials were rejected. Terminal.
	KindAuthFailure ErrorKind = iota + 1
	// KindProtocolViolation: the peer broke framing or sent a malformed
	// argument. The command is aborted and reported; the session continues.
	KindProtocolViolation
	// KindPathRejected: a path escaped the sandbox or lacked the required
	// property. Reported; the session continues.
	KindPathRejected
	// KindIOFailure: the connection failed or lost framing mid-command.
	// Terminal.
	KindIOFailure
	// KindLocalFailure: a server-side file operation failed while the
	// stream stayed framed. Reported; the session continues.
	KindLocalFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthFailure:
		return "auth_failure"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindPathRejected:
		return "path_rejected"
	case KindIOFailure:
		return "io_failure"
	case KindLocalFailure:
		return "local_failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether an error of this kind ends the session.
func (k ErrorKind) Terminal() bool {
	return k == KindAuthFailure || k == KindIOFailure
}

// ProtocolError is a classified session error. Message is what the client is
// shown; the wrapped error keeps the cause for logs and errors.Is.
//
// ProtocolError supports errors.Is() via Unwrap(), so callers can match both
// the kind (through AsProtocolError) and the underlying sentinel.
type ProtocolError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Terminal reports whether the session must close after this error.
func (e *ProtocolError) Terminal() bool { return e.Kind.Terminal() }

// NewError builds a ProtocolError.
func NewError(kind ErrorKind, err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsProtocolError extracts a *ProtocolError from err's chain.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the kind of err, treating unclassified errors as I/O
// failures.
func KindOf(err error) ErrorKind {
	if pe, ok := AsProtocolError(err); ok {
		return pe.Kind
	}
	return KindIOFailure
}
