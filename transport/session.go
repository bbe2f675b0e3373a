package transport

import (
	"time"

	"chan-rpc/config"
	"chan-rpc/message"
)

// Session gives a Client request/response semantics.
type Session struct {
	client Client
}

func NewSession(c Client) *Session {
	return &Session{client: c}
}

// Send writes msg as a oneway request; the peer never answers it. sent asks the client
// to wait until the frame is written.
func (s *Session) Send(msg any, sent bool) error {
	if s.client.IsClosed() {
		return newRemotingError(s.client, nil, "failed to send message %s, cause: the channel is closed", describe(msg))
	}
	req, ok := msg.(*message.Request)
	if !ok {
		req = s.newRequest(msg, false)
	}
	if err := s.client.Send(req, sent); err != nil {
		return newRemotingError(s.client, err, "failed to send message %s: %v", describe(msg), err)
	}
	return nil
}

// Request sends msg and returns a Future bounded by the client's "timeout" parameter,
// or config.DefaultTimeout when none is set.
func (s *Session) Request(msg any) (Future, error) {
	timeout := s.client.Config().Duration(config.TimeoutKey, config.DefaultTimeout)
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return s.RequestTimeout(msg, timeout)
}

// RequestTimeout sends msg and returns a Future that expires after timeout.
func (s *Session) RequestTimeout(msg any, timeout time.Duration) (Future, error) {
	if s.client.IsClosed() {
		return nil, newRemotingError(s.client, nil, "failed to send request %s, cause: the channel is closed", describe(msg))
	}
	req := s.newRequest(msg, true)
	// Register before sending so a fast reply cannot race past us.
	f := newFuture(s.client, req, timeout)
	if err := s.client.Send(req, false); err != nil {
		f.cancel()
		return nil, newRemotingError(s.client, err, "failed to send request %s: %v", describe(msg), err)
	}
	return f, nil
}

func (s *Session) newRequest(data any, twoWay bool) *message.Request {
	return &message.Request{
		ID:     nextID(),
		TwoWay: twoWay,
		Codec:  s.client.Config().Get(config.CodecKey),
		Data:   data,
	}
}

func describe(msg any) string {
	if m := methodOf(msg); m != "" {
		return m
	}
	if req, ok := msg.(*message.Request); ok {
		return methodOf(req.Data)
	}
	return "<unknown>"
}
