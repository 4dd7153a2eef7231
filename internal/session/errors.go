package session

import "errors"

// Kind classifies session failures
type Kind int

const (
	KindAlreadyScanning Kind = iota + 1
	KindBusy
	KindStaleHandle
	KindConnectTimeout
	KindConnectRejected
	KindSubscriptionFailed
	KindConnectCanceled
	KindNotConnected
	KindTransportFault
	KindInvalidTransition
	KindCommandFailed
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyScanning:
		return "scan already in progress"
	case KindBusy:
		return "session busy"
	case KindStaleHandle:
		return "stale device handle"
	case KindConnectTimeout:
		return "connect timed out"
	case KindConnectRejected:
		return "connect rejected"
	case KindSubscriptionFailed:
		return "subscription failed"
	case KindConnectCanceled:
		return "connect canceled"
	case KindNotConnected:
		return "not connected"
	case KindTransportFault:
		return "transport fault"
	case KindInvalidTransition:
		return "invalid state transition"
	case KindCommandFailed:
		return "command failed"
	default:
		return "session error"
	}
}

// Error is the error type returned by Session operations.
// Errors of the same Kind match each other under errors.Is, and the
// underlying cause stays reachable through Unwrap.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAlreadyScanning    = &Error{Kind: KindAlreadyScanning}
	ErrBusy               = &Error{Kind: KindBusy}
	ErrStaleHandle        = &Error{Kind: KindStaleHandle}
	ErrConnectTimeout     = &Error{Kind: KindConnectTimeout}
	ErrConnectRejected    = &Error{Kind: KindConnectRejected}
	ErrSubscriptionFailed = &Error{Kind: KindSubscriptionFailed}
	ErrConnectCanceled    = &Error{Kind: KindConnectCanceled}
	ErrNotConnected       = &Error{Kind: KindNotConnected}
	ErrTransportFault     = &Error{Kind: KindTransportFault}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrCommandFailed      = &Error{Kind: KindCommandFailed}
)

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Recoverable reports whether a failed connect is worth retrying.
func Recoverable(err error) bool {
	return errors.Is(err, ErrConnectTimeout) ||
		errors.Is(err, ErrConnectRejected) ||
		errors.Is(err, ErrSubscriptionFailed)
}
