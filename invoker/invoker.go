// Package invoker exposes a remote-invocation contract over a channel someone else owns.
//
// The typical case is a reverse call: a server accepted a connection and wants to call a
// callback service hosted by the dialing client over that same connection. ChannelInvoker
// builds a fresh Session per call, picks the dispatch mode from per-method configuration and
// translates every failure into an rpcerr.Error. It never closes or resets the channel.
package invoker

import (
	"context"
	"maps"
	"reflect"
	"time"

	"chan-rpc/channel"
	"chan-rpc/config"
	"chan-rpc/message"
	"chan-rpc/rpcerr"
	"chan-rpc/transport"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Invoker is a single-call RPC contract.
type Invoker interface {
	Interface() string
	Config() *config.Config
	IsAvailable() bool
	Invoke(ctx context.Context, inv *message.Invocation) (*message.Result, error)
	Destroy()
}

// Session is what an invoker needs from the request/response layer.
type Session interface {
	Send(msg any, sent bool) error
	Request(msg any) (transport.Future, error)
	RequestTimeout(msg any, timeout time.Duration) (transport.Future, error)
}

// SessionFactory builds a Session over a client-shaped endpoint.
type SessionFactory func(c transport.Client) Session

func defaultSessionFactory(c transport.Client) Session {
	return transport.NewSession(c)
}

// PassthroughKeys are the channel parameters an invoker records at construction.
var PassthroughKeys = []string{config.GroupKey, config.TokenKey, config.TimeoutKey}

type ChannelInvoker struct {
	iface       string
	path        string
	serviceKey  string
	ch          channel.Channel
	cfg         *config.Config
	passthrough map[string]string
	newSession  SessionFactory
	logger      *zap.Logger
}

var _ Invoker = (*ChannelInvoker)(nil)

type Option func(*ChannelInvoker)

// WithPath sets the service path attachment. Without it the path is the service type's
// fully-qualified name.
func WithPath(path string) Option {
	return func(i *ChannelInvoker) { i.path = path }
}

func WithSessionFactory(f SessionFactory) Option {
	return func(i *ChannelInvoker) { i.newSession = f }
}

func WithLogger(l *zap.Logger) Option {
	return func(i *ChannelInvoker) { i.logger = l }
}

// New returns an invoker for serviceType over ch. serviceKey is sent with every call so
// the peer can find the callback instance it refers to.
func New(serviceType reflect.Type, ch channel.Channel, serviceKey string, opts ...Option) *ChannelInvoker {
	cfg := ch.Config()
	i := &ChannelInvoker{
		iface:       ServiceName(serviceType),
		serviceKey:  serviceKey,
		ch:          ch,
		cfg:         cfg,
		passthrough: cfg.Subset(PassthroughKeys...),
		newSession:  defaultSessionFactory,
		logger:      zap.L(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.path == "" {
		i.path = i.iface
	}
	i.logger = i.logger.With(zap.String("service", i.iface), zap.String("channel", ch.ID()))
	return i
}

// ServiceName is the fully-qualified name of a service type, "pkg/path.Name".
func ServiceName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func (i *ChannelInvoker) Interface() string      { return i.iface }
func (i *ChannelInvoker) Path() string           { return i.path }
func (i *ChannelInvoker) ServiceKey() string     { return i.serviceKey }
func (i *ChannelInvoker) Config() *config.Config { return i.cfg }

// Passthrough returns the group, token and timeout parameters present on the channel.
func (i *ChannelInvoker) Passthrough() map[string]string {
	return maps.Clone(i.passthrough)
}

func (i *ChannelInvoker) IsAvailable() bool {
	return i.ch.IsConnected()
}

// Invoke performs exactly one send. With "<method>.async" set it returns an empty result as
// soon as the frame is handed to the channel; otherwise it waits for the reply, bounded by the
// method's timeout, or the session's default when no positive timeout is configured.
func (i *ChannelInvoker) Invoke(ctx context.Context, inv *message.Invocation) (*message.Result, error) {
	out := message.NewInvocation(inv.MethodName, inv.ParameterTypes, inv.Arguments, inv.Attachments)
	// The invoking side cannot resolve the peer's exported path, so it sends its own.
	out.SetAttachment(message.PathKey, i.path)
	out.SetAttachment(message.CallbackServiceKey, i.serviceKey)

	session := i.newSession(NewChannelAdapter(i.ch))
	method := inv.MethodName

	if i.cfg.MethodBool(method, config.AsyncKey, false) {
		sent := i.cfg.MethodBool(method, config.SentKey, false)
		if err := session.Send(out, sent); err != nil {
			return nil, i.translate(method, err)
		}
		return &message.Result{}, nil
	}

	var (
		future transport.Future
		err    error
	)
	if timeout := i.cfg.MethodDuration(method, config.TimeoutKey, 0); timeout > 0 {
		future, err = session.RequestTimeout(out, timeout)
	} else {
		future, err = session.Request(out)
	}
	if err != nil {
		return nil, i.translate(method, err)
	}

	reply, err := future.Get(ctx)
	if err != nil {
		return nil, i.translate(method, err)
	}
	return &message.Result{Value: reply.Payload, Attachments: reply.Attachments}, nil
}

// translate maps a session failure onto the rpcerr kinds. It is the only place failures
// cross into the invoker's error space.
func (i *ChannelInvoker) translate(method string, err error) error {
	var (
		classified *rpcerr.Error
		timeout    *transport.TimeoutError
		remoting   *transport.RemotingError
		out        error
	)
	switch {
	case errors.As(err, &classified):
		out = err
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		out = rpcerr.New(rpcerr.Timeout, err.Error(), err)
	case errors.As(err, &remoting):
		out = rpcerr.New(rpcerr.Network, err.Error(), err)
	default:
		out = rpcerr.New(rpcerr.Unknown, err.Error(), err)
	}
	i.logger.Debug("invocation failed",
		zap.String("method", method),
		zap.Stringer("kind", rpcerr.KindOf(out)),
		zap.Error(err))
	return out
}

// Destroy releases nothing. The channel belongs to its creator, who may still be using it;
// closing it here would cut every other user of the connection.
func (i *ChannelInvoker) Destroy() {
	i.logger.Debug("invoker destroyed, channel left open")
}
