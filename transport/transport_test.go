package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"chan-rpc/config"
	"chan-rpc/message"
	"chan-rpc/rpcerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id      string
	cfg     *config.Config
	closed  bool
	sendErr error

	mu    sync.Mutex
	sent  []*message.Request
	acked []bool
}

func newFakeClient(id string, params map[string]string) *fakeClient {
	return &fakeClient{id: id, cfg: config.New(params)}
}

func (c *fakeClient) ID() string                  { return c.id }
func (c *fakeClient) Config() *config.Config      { return c.cfg }
func (c *fakeClient) LocalAddr() net.Addr         { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1} }
func (c *fakeClient) RemoteAddr() net.Addr        { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2} }
func (c *fakeClient) IsConnected() bool           { return !c.closed }
func (c *fakeClient) IsClosed() bool              { return c.closed }
func (c *fakeClient) Close() error                { c.closed = true; return nil }
func (c *fakeClient) Reconnect() error            { return nil }
func (c *fakeClient) Reset(*config.Config) error  { return nil }
func (c *fakeClient) Attribute(string) any        { return nil }
func (c *fakeClient) HasAttribute(string) bool    { return false }
func (c *fakeClient) SetAttribute(string, any)    {}
func (c *fakeClient) RemoveAttribute(string)      {}

func (c *fakeClient) Send(msg any, sent bool) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg.(*message.Request))
	c.acked = append(c.acked, sent)
	return nil
}

func (c *fakeClient) last(t *testing.T) *message.Request {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	return c.sent[len(c.sent)-1]
}

func invocation(method string) *message.Invocation {
	return message.NewInvocation(method, nil, nil, nil)
}

func TestRequestReceivesResponse(t *testing.T) {
	c := newFakeClient("ch-1", map[string]string{config.CodecKey: "binary"})
	s := NewSession(c)

	f, err := s.RequestTimeout(invocation("Add"), time.Second)
	require.NoError(t, err)

	req := c.last(t)
	assert.True(t, req.TwoWay)
	assert.Equal(t, "binary", req.Codec)
	assert.False(t, f.Done())

	go Received("ch-1", &message.Response{ID: req.ID, Data: &message.RPCMessage{Status: message.StatusOK, Payload: []byte(`3`)}})

	resp, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `3`, string(resp.Payload))
	assert.True(t, f.Done())
}

func TestRequestTimesOut(t *testing.T) {
	c := newFakeClient("ch-2", nil)
	start := time.Now()

	f, err := NewSession(c).RequestTimeout(invocation("Slow"), 80*time.Millisecond)
	require.NoError(t, err)

	_, err = f.Get(context.Background())
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.ServerSide)
	assert.Equal(t, "Slow", te.Method)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A late reply finds nobody waiting.
	assert.False(t, Received("ch-2", &message.Response{ID: c.last(t).ID, Data: &message.RPCMessage{Status: message.StatusOK}}))
}

func TestRequestUsesConfiguredTimeout(t *testing.T) {
	c := newFakeClient("ch-3", map[string]string{config.TimeoutKey: "30"})
	start := time.Now()

	f, err := NewSession(c).Request(invocation("Slow"))
	require.NoError(t, err)
	_, err = f.Get(context.Background())

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 30*time.Millisecond, te.Timeout)
	assert.Less(t, time.Since(start), config.DefaultTimeout)
}

func TestRequestNonPositiveTimeoutUsesDefault(t *testing.T) {
	c := newFakeClient("ch-3b", map[string]string{config.TimeoutKey: "0"})

	f, err := NewSession(c).Request(invocation("Any"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTimeout, f.(*DefaultFuture).timeout)
	f.(*DefaultFuture).cancel()
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name  string
		resp  *message.RPCMessage
		check func(t *testing.T, err error)
	}{
		{"biz", &message.RPCMessage{Status: message.StatusOK, Error: "insufficient funds"}, func(t *testing.T, err error) {
			assert.True(t, rpcerr.IsBiz(err))
			assert.Equal(t, "insufficient funds", err.Error())
		}},
		{"server timeout", &message.RPCMessage{Status: message.StatusServerTimeout, Error: "handler timed out"}, func(t *testing.T, err error) {
			var te *TimeoutError
			require.ErrorAs(t, err, &te)
			assert.True(t, te.ServerSide)
			assert.Equal(t, "handler timed out", err.Error())
		}},
		{"not found", &message.RPCMessage{Status: message.StatusServiceNotFound, Error: "no service"}, func(t *testing.T, err error) {
			var re *RemotingError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "no service", re.Error())
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newFakeClient("ch-status", nil)
			f, err := NewSession(c).RequestTimeout(invocation("M"), time.Second)
			require.NoError(t, err)
			require.True(t, Received("ch-status", &message.Response{ID: c.last(t).ID, Data: tc.resp}))

			_, err = f.Get(context.Background())
			tc.check(t, err)
		})
	}
}

func TestDisconnectedFailsOnlyOwnedRequests(t *testing.T) {
	mine, other := newFakeClient("ch-mine", nil), newFakeClient("ch-other", nil)
	f1, err := NewSession(mine).RequestTimeout(invocation("A"), time.Second)
	require.NoError(t, err)
	f2, err := NewSession(other).RequestTimeout(invocation("B"), time.Second)
	require.NoError(t, err)

	cause := errors.New("connection reset by peer")
	assert.Equal(t, 1, Disconnected("ch-mine", cause))

	_, err = f1.Get(context.Background())
	var re *RemotingError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, cause)
	assert.False(t, f2.Done())

	f2.(*DefaultFuture).cancel()
}

func TestReceivedIgnoresOtherChannels(t *testing.T) {
	a := newFakeClient("ch-a", nil)
	f, err := NewSession(a).RequestTimeout(invocation("Slow"), time.Second)
	require.NoError(t, err)
	id := a.last(t).ID

	forged := &message.Response{ID: id, Data: &message.RPCMessage{Status: message.StatusOK, Payload: []byte(`{"Result":42}`)}}
	assert.False(t, Received("ch-b", forged))
	assert.False(t, f.Done())

	genuine := &message.Response{ID: id, Data: &message.RPCMessage{Status: message.StatusOK, Payload: []byte(`{"Result":3}`)}}
	require.True(t, Received("ch-a", genuine))
	resp, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"Result":3}`, string(resp.Payload))
}

func TestExpirePrefersArrivedReply(t *testing.T) {
	c := newFakeClient("ch-expire", nil)
	f, err := NewSession(c).RequestTimeout(invocation("A"), time.Millisecond)
	require.NoError(t, err)
	require.True(t, Received("ch-expire", &message.Response{ID: c.last(t).ID, Data: &message.RPCMessage{Status: message.StatusOK, Payload: []byte(`1`)}}))

	resp, err := f.(*DefaultFuture).expire()
	require.NoError(t, err)
	assert.Equal(t, `1`, string(resp.Payload))
}

func TestExpireWithoutReply(t *testing.T) {
	c := newFakeClient("ch-expire-2", nil)
	f, err := NewSession(c).RequestTimeout(invocation("A"), time.Millisecond)
	require.NoError(t, err)

	_, err = f.(*DefaultFuture).expire()
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.False(t, Received("ch-expire-2", &message.Response{ID: c.last(t).ID}))
}

func TestGetHonoursContext(t *testing.T) {
	c := newFakeClient("ch-ctx", nil)
	f, err := NewSession(c).RequestTimeout(invocation("A"), time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, Received("ch-ctx", &message.Response{ID: c.last(t).ID}))
}

func TestSendIsOneway(t *testing.T) {
	c := newFakeClient("ch-send", nil)
	require.NoError(t, NewSession(c).Send(invocation("Notify"), true))

	req := c.last(t)
	assert.False(t, req.TwoWay)
	assert.Equal(t, []bool{true}, c.acked)
}

func TestClosedClientFailsFast(t *testing.T) {
	c := newFakeClient("ch-closed", nil)
	c.closed = true
	s := NewSession(c)

	var re *RemotingError
	assert.ErrorAs(t, s.Send(invocation("Notify"), false), &re)
	_, err := s.RequestTimeout(invocation("Add"), time.Second)
	assert.ErrorAs(t, err, &re)
	assert.Contains(t, err.Error(), "channel is closed")
}

func TestSendErrorIsRemoting(t *testing.T) {
	c := newFakeClient("ch-err", nil)
	c.sendErr = errors.New("broken pipe")
	before := Pending()

	_, err := NewSession(c).RequestTimeout(invocation("Add"), time.Second)
	var re *RemotingError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, c.sendErr)
	assert.Equal(t, before, Pending(), "failed request must not stay pending")
}
