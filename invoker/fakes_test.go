package invoker

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"chan-rpc/config"
	"chan-rpc/message"
	"chan-rpc/transport"
)

// fakeChannel counts Close calls and keeps attributes in a map.
type fakeChannel struct {
	cfg        *config.Config
	connected  bool
	closed     bool
	closeCalls atomic.Int32

	mu    sync.Mutex
	attrs map[string]any
	sent  []any
}

func newFakeChannel(params map[string]string) *fakeChannel {
	return &fakeChannel{cfg: config.New(params), connected: true, attrs: make(map[string]any)}
}

func (c *fakeChannel) ID() string             { return "fake-channel" }
func (c *fakeChannel) Config() *config.Config { return c.cfg }
func (c *fakeChannel) LocalAddr() net.Addr    { return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 20880} }
func (c *fakeChannel) RemoteAddr() net.Addr   { return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 51234} }
func (c *fakeChannel) IsConnected() bool      { return c.connected }
func (c *fakeChannel) IsClosed() bool         { return c.closed }

func (c *fakeChannel) Close() error {
	c.closeCalls.Add(1)
	c.closed, c.connected = true, false
	return nil
}

func (c *fakeChannel) Send(msg any, sent bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Attribute(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attrs[key]
}

func (c *fakeChannel) HasAttribute(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.attrs[key]
	return ok
}

func (c *fakeChannel) SetAttribute(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[key] = value
}

func (c *fakeChannel) RemoveAttribute(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attrs, key)
}

// fakeFuture replies with resp/err, or never when hang is set.
type fakeFuture struct {
	resp *message.RPCMessage
	err  error
	hang bool
}

func (f *fakeFuture) Get(ctx context.Context) (*message.RPCMessage, error) {
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

func (f *fakeFuture) Done() bool { return !f.hang }

// fakeSession records which overload the invoker used.
type fakeSession struct {
	mu sync.Mutex

	client   transport.Client
	sends    []any
	sentFlag []bool
	requests []any
	timeouts []time.Duration
	defaults int

	future  transport.Future
	sendErr error
	reqErr  error
}

func (s *fakeSession) Send(msg any, sent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, msg)
	s.sentFlag = append(s.sentFlag, sent)
	return s.sendErr
}

func (s *fakeSession) Request(msg any) (transport.Future, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, msg)
	s.defaults++
	return s.future, s.reqErr
}

func (s *fakeSession) RequestTimeout(msg any, timeout time.Duration) (transport.Future, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, msg)
	s.timeouts = append(s.timeouts, timeout)
	return s.future, s.reqErr
}

// factory hands out s for every call and counts how many sessions were built.
func (s *fakeSession) factory(built *int) SessionFactory {
	return func(c transport.Client) Session {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.client = c
		*built++
		return s
	}
}

func (s *fakeSession) lastMessage() *message.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) > 0 {
		return s.requests[len(s.requests)-1].(*message.Invocation)
	}
	return s.sends[len(s.sends)-1].(*message.Invocation)
}
