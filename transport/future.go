package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chan-rpc/message"
	"chan-rpc/rpcerr"

	"go.uber.org/zap"
)

// Future is a pending reply.
type Future interface {
	// Get blocks until the reply arrives, the request's timeout elapses or ctx is done.
	Get(ctx context.Context) (*message.RPCMessage, error)
	Done() bool
}

var (
	seq     atomic.Uint32
	pending sync.Map // map[uint32]*DefaultFuture
)

func nextID() uint32 {
	return seq.Add(1)
}

// DefaultFuture is registered in the pending table from creation until it completes,
// times out or is cancelled.
type DefaultFuture struct {
	id      uint32
	owner   string // ID of the Client the request went out on
	remote  string
	method  string
	timeout time.Duration
	start   time.Time

	once sync.Once
	done chan struct{}
	resp *message.RPCMessage
	err  error
}

func newFuture(c Client, req *message.Request, timeout time.Duration) *DefaultFuture {
	f := &DefaultFuture{
		id:      req.ID,
		owner:   c.ID(),
		method:  methodOf(req.Data),
		timeout: timeout,
		start:   time.Now(),
		done:    make(chan struct{}),
	}
	if addr := c.RemoteAddr(); addr != nil {
		f.remote = addr.String()
	}
	pending.Store(f.id, f)
	return f
}

func (f *DefaultFuture) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *DefaultFuture) Get(ctx context.Context) (*message.RPCMessage, error) {
	if !f.Done() {
		timer := time.NewTimer(f.timeout - time.Since(f.start))
		defer timer.Stop()

		select {
		case <-f.done:
		case <-timer.C:
			return f.expire()
		case <-ctx.Done():
			f.cancel()
			return nil, ctx.Err()
		}
	}
	return f.result()
}

// expire runs when the timer fires. A reply that landed at the same instant still wins.
func (f *DefaultFuture) expire() (*message.RPCMessage, error) {
	if f.Done() {
		return f.result()
	}
	f.cancel()
	return nil, &TimeoutError{
		ID:      f.id,
		Method:  f.method,
		Remote:  f.remote,
		Timeout: f.timeout,
		Elapsed: time.Since(f.start),
	}
}

func (f *DefaultFuture) result() (*message.RPCMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := f.resp
	switch resp.Status {
	case message.StatusOK:
		if resp.Error != "" {
			return nil, rpcerr.New(rpcerr.Biz, resp.Error, nil)
		}
		return resp, nil
	case message.StatusClientTimeout, message.StatusServerTimeout:
		return nil, &TimeoutError{
			ID:         f.id,
			Method:     f.method,
			Remote:     f.remote,
			Timeout:    f.timeout,
			ServerSide: resp.Status == message.StatusServerTimeout,
			msg:        resp.Error,
		}
	default:
		return nil, &RemotingError{Remote: f.remote, Msg: resp.Error}
	}
}

func (f *DefaultFuture) complete(resp *message.RPCMessage, err error) {
	f.once.Do(func() {
		f.resp, f.err = resp, err
		close(f.done)
	})
}

// cancel drops the future from the pending table; a late reply is then discarded.
func (f *DefaultFuture) cancel() {
	pending.Delete(f.id)
}

// Received routes a response that arrived on the channel identified by owner to its
// waiting future. A response for a request that went out on another channel is dropped.
// It reports false when nobody on owner waits for resp.ID, typically because the caller
// already timed out.
func Received(owner string, resp *message.Response) bool {
	v, ok := pending.Load(resp.ID)
	if !ok {
		zap.L().Debug("discarding response without a pending request", zap.Uint32("seq", resp.ID))
		return false
	}
	f := v.(*DefaultFuture)
	if f.owner != owner {
		zap.L().Warn("dropping response from a channel the request was not sent on",
			zap.Uint32("seq", resp.ID), zap.String("channel", owner), zap.String("expected", f.owner))
		return false
	}
	if !pending.CompareAndDelete(resp.ID, f) {
		return false
	}
	data := resp.Data
	if data == nil {
		data = &message.RPCMessage{Status: message.StatusBadRequest, Error: "empty response"}
	}
	f.complete(data, nil)
	return true
}

// Disconnected fails every request still waiting on the connection identified by owner.
func Disconnected(owner string, cause error) int {
	n := 0
	pending.Range(func(key, value any) bool {
		f := value.(*DefaultFuture)
		if f.owner != owner {
			return true
		}
		if _, ok := pending.LoadAndDelete(key); ok {
			f.complete(nil, &RemotingError{
				Remote: f.remote,
				Msg:    "channel " + owner + " closed before a response arrived for " + f.method,
				cause:  cause,
			})
			n++
		}
		return true
	})
	return n
}

// Pending returns how many requests are waiting for a response.
func Pending() int {
	n := 0
	pending.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func methodOf(data any) string {
	switch d := data.(type) {
	case *message.Invocation:
		return d.MethodName
	case *message.RPCMessage:
		return d.Method
	}
	return ""
}
