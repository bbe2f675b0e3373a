package transport

import (
	"fmt"
	"time"
)

// TimeoutError reports that no response arrived in time. ServerSide is set when the peer
// itself reported that its handler timed out.
type TimeoutError struct {
	ID         uint32
	Method     string
	Remote     string
	Timeout    time.Duration
	Elapsed    time.Duration
	ServerSide bool
	msg        string
}

func (e *TimeoutError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	side := "client"
	if e.ServerSide {
		side = "server"
	}
	return fmt.Sprintf("waiting %s-side response timeout: method %s, seq %d, remote %s, elapsed %s, timeout %s",
		side, e.Method, e.ID, e.Remote, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

// RemotingError is a transport-level failure: the frame could not be sent, the connection
// went away while waiting, or the peer answered with a non-OK status.
type RemotingError struct {
	Remote string
	Msg    string
	cause  error
}

func (e *RemotingError) Error() string {
	return e.Msg
}

func (e *RemotingError) Unwrap() error { return e.cause }

func newRemotingError(c Client, cause error, format string, args ...any) *RemotingError {
	e := &RemotingError{Msg: fmt.Sprintf(format, args...), cause: cause}
	if c != nil && c.RemoteAddr() != nil {
		e.Remote = c.RemoteAddr().String()
	}
	return e
}
