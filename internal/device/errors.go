package device

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the beacon core.
type Kind string

const (
	PermissionDenied Kind = "permission_denied"
	InvalidParameter Kind = "invalid_parameter"
	Unsupported      Kind = "unsupported"
	TransportFailure Kind = "transport_failure"
	Internal         Kind = "internal"
)

// Reason narrows an InvalidParameter failure down to the offending part of a request.
type Reason string

const (
	ReasonNone   Reason = ""
	ReasonOffset Reason = "offset"
	ReasonLength Reason = "length"
	ReasonValue  Reason = "value"
)

// Error is the single error type returned by slot, gateway and advertising operations.
type Error struct {
	Kind   Kind
	Reason Reason
	Msg    string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := string(e.Kind)
	if e.Reason != ReasonNone {
		s += " (" + string(e.Reason) + ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == ReasonNone || t.Reason == e.Reason)
}

// Predefined sentinel errors, one per kind
var (
	ErrPermissionDenied = &Error{Kind: PermissionDenied}
	ErrInvalidParameter = &Error{Kind: InvalidParameter}
	ErrUnsupported      = &Error{Kind: Unsupported}
	ErrTransportFailure = &Error{Kind: TransportFailure}
	ErrInternal         = &Error{Kind: Internal}

	ErrInvalidOffset = &Error{Kind: InvalidParameter, Reason: ReasonOffset}
	ErrInvalidLength = &Error{Kind: InvalidParameter, Reason: ReasonLength}
)

// Radio state errors. Transports return them for start-when-started and
// stop-when-stopped; callers log them instead of failing.
var (
	ErrAlreadyAdvertising = errors.New("already advertising")
	ErrNotAdvertising     = errors.New("not advertising")
)

func Denied(format string, args ...interface{}) error {
	return &Error{Kind: PermissionDenied, Msg: fmt.Sprintf(format, args...)}
}

func InvalidOffset(offset int) error {
	return &Error{Kind: InvalidParameter, Reason: ReasonOffset, Msg: fmt.Sprintf("offset %d", offset)}
}

func InvalidLength(got, limit int) error {
	return &Error{Kind: InvalidParameter, Reason: ReasonLength, Msg: fmt.Sprintf("length %d, limit %d", got, limit)}
}

func InvalidValue(format string, args ...interface{}) error {
	return &Error{Kind: InvalidParameter, Reason: ReasonValue, Msg: fmt.Sprintf(format, args...)}
}

func NotSupported(format string, args ...interface{}) error {
	return &Error{Kind: Unsupported, Msg: fmt.Sprintf(format, args...)}
}

// Transport wraps a failure reported by the radio collaborator during op.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: TransportFailure, Msg: op, Err: err}
}

func InternalError(msg string, err error) error {
	return &Error{Kind: Internal, Msg: msg, Err: err}
}

// IsKind reports whether err is an Error with the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ReasonOf returns the reason carried by err, ReasonNone if err is not an Error.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}
