package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure at its point of origin.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindParse
	KindValidation
	KindDispatch
	KindBinaryUnsupported
)

const (
	ReasonInvalidJSON        = "invalid_json"
	ReasonDispatchFailed     = "dispatch_failed"
	ReasonBinaryNotSupported = "binary_not_supported"
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	case KindDispatch:
		return "dispatch"
	case KindBinaryUnsupported:
		return "binary_unsupported"
	default:
		return "unknown"
	}
}

// Error is a classified bridge failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reply returns the frame a client sees for this error. Transport errors
// have no reply: the session closes instead.
func (e *Error) Reply() (Reply, bool) {
	switch e.Kind {
	case KindParse:
		return ErrorReply(ReasonInvalidJSON, e.Msg), true
	case KindValidation:
		return ErrorReply(e.Msg, ""), true
	case KindDispatch:
		return ErrorReply(ReasonDispatchFailed, ""), true
	case KindBinaryUnsupported:
		return ErrorReply(ReasonBinaryNotSupported, ""), true
	default:
		return Reply{}, false
	}
}

// KindOf reports the kind of err, or KindUnknown if it is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func parseError(format string, args ...any) *Error {
	return &Error{Kind: KindParse, Msg: fmt.Sprintf(format, args...)}
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// DispatchError wraps a bus-level failure.
func DispatchError(err error) *Error {
	return &Error{Kind: KindDispatch, Err: err}
}

// TransportError wraps a socket or framing failure.
func TransportError(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// ErrBinaryUnsupported is returned for binary frames.
var ErrBinaryUnsupported = &Error{Kind: KindBinaryUnsupported}
