// Package rpcerr is the single error taxonomy that crosses an invoker boundary.
//
// Every failure an invoker returns is an *Error carrying one Kind, the original message and,
// where there is one, the underlying cause. Transport-specific error types never leak past
// the invoker; they are translated exactly once, where the session layer hands them back.
package rpcerr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	Unknown Kind = iota // any other failure during dispatch
	Network             // send failure, connection reset, peer reported a transport problem
	Timeout             // no reply before the wait expired
	Biz                 // application error returned by the remote handler
	Config              // operation invalid for this component
)

func (k Kind) String() string {
	switch k {
	case Unknown:
		return "unknown"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case Biz:
		return "biz"
	case Config:
		return "config"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

// New returns an error of the given kind. cause may be nil.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

// Errorf formats a message for an error without cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as Unknown, keeping its message. An *Error is returned unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: Unknown, Msg: err.Error(), cause: err}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

// Cause satisfies github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// Format supports %+v, printing the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s error: %s", e.Kind, e.Msg)
			if e.cause != nil {
				fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Msg)
	case 'q':
		fmt.Fprintf(s, "%q", e.Msg)
	}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func IsTimeout(err error) bool { return is(err, Timeout) }
func IsNetwork(err error) bool { return is(err, Network) }
func IsBiz(err error) bool     { return is(err, Biz) }
func IsConfig(err error) bool  { return is(err, Config) }

func is(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
