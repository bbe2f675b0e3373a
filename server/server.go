// Package server implements the serving side of a channel: service registration, the
// middleware chain, parallel request processing and graceful shutdown.
//
// A Server is a channel.Handler. Serve accepts connections and wraps each one in a
// channel.ConnChannel handled by the server; a client can use a Server without Serve to
// host callback services on the channel it dialed.
//
// Request processing pipeline:
//
//	ConnChannel.readLoop → go Received(request)
//	  → Middleware Chain → businessHandler (reflect.Call) → Response{Status} → ch.Send
//	ConnChannel.readLoop → Received(response) → transport.Received (wakes the waiting future)
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"chan-rpc/channel"
	"chan-rpc/config"
	"chan-rpc/message"
	"chan-rpc/middleware"
	"chan-rpc/rpcerr"
	"chan-rpc/transport"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Server registers services and handles requests arriving on its channels.
type Server struct {
	mu          sync.RWMutex
	serviceMap  map[string]*service     // "chan-rpc/cmd/chanrpc.Notifier" → *service
	middlewares []middleware.Middleware // applied in the order added
	handler     middleware.HandlerFunc  // middleware(middleware(...(businessHandler)))

	cfg       *config.Config // parameters of accepted channels
	logger    *zap.Logger
	onConnect func(ch channel.Channel)

	listener net.Listener
	channels sync.Map       // channel id → *channel.ConnChannel
	wg       sync.WaitGroup // in-flight requests, for graceful shutdown
	shutdown atomic.Bool    // set before closing the listener so Accept errors are expected
}

var _ channel.Handler = (*Server)(nil)

type Option func(*Server)

// WithConfig sets the parameters given to every accepted channel.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithOnConnect registers fn to run, on its own goroutine, for every accepted channel.
// This is where reverse calls to the connecting peer start.
func WithOnConnect(fn func(ch channel.Channel)) Option {
	return func(s *Server) { s.onConnect = fn }
}

// NewServer creates a server with an empty service map.
func NewServer(opts ...Option) *Server {
	s := &Server{
		serviceMap: make(map[string]*service),
		cfg:        config.Empty(),
		logger:     zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.businessHandler
	return s
}

// Register registers rcvr under its fully-qualified type name.
func (svr *Server) Register(rcvr any) error {
	return svr.RegisterName("", rcvr)
}

// RegisterName registers rcvr under name, the path callers put in the "path" attachment.
// Callers using invoker.New with an interface type reach it when name is
// invoker.ServiceName of that interface.
func (svr *Server) RegisterName(name string, rcvr any) error {
	svc, err := NewService(name, rcvr)
	if err != nil {
		return err
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if _, dup := svr.serviceMap[svc.name]; dup {
		return fmt.Errorf("rpc: service already defined: %s", svc.name)
	}
	svr.serviceMap[svc.name] = svc
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.middlewares = append(svr.middlewares, mw)
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)
}

// Serve listens on the given address and serves connections until Shutdown.
func (svr *Server) Serve(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(ln)
}

// ServeListener accepts connections on ln until Shutdown.
func (svr *Server) ServeListener(ln net.Listener) error {
	svr.mu.Lock()
	svr.listener = ln
	svr.mu.Unlock()
	svr.logger.Info("serving", zap.Stringer("addr", ln.Addr()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			// listener.Close() during Shutdown makes Accept fail; that is not an error.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		if _, err := svr.ServeConn(conn); err != nil {
			svr.logger.Warn("rejecting connection", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			conn.Close()
		}
	}
}

// ServeConn wraps conn in a channel handled by svr. The server owns the channel and closes
// it on Shutdown.
func (svr *Server) ServeConn(conn net.Conn) (*channel.ConnChannel, error) {
	ch, err := channel.New(conn, svr, channel.WithConfig(svr.cfg), channel.WithLogger(svr.logger))
	if err != nil {
		return nil, err
	}
	svr.channels.Store(ch.ID(), ch)
	if ch.IsClosed() {
		// Lost the race with a peer that hung up immediately.
		svr.channels.Delete(ch.ID())
		return ch, nil
	}
	svr.logger.Debug("channel accepted", zap.String("channel", ch.ID()), zap.Stringer("remote", ch.RemoteAddr()))
	if svr.onConnect != nil {
		go svr.onConnect(ch)
	}
	return ch, nil
}

// Received dispatches requests to services and hands responses to the futures waiting
// for them.
func (svr *Server) Received(ch channel.Channel, msg any) {
	switch m := msg.(type) {
	case *message.Request:
		svr.handleRequest(ch, m)
	case *message.Response:
		transport.Received(ch.ID(), m)
	default:
		svr.logger.Warn("unexpected message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Disconnected fails the requests still waiting on ch.
func (svr *Server) Disconnected(ch channel.Channel, err error) {
	svr.channels.Delete(ch.ID())
	if n := transport.Disconnected(ch.ID(), err); n > 0 {
		svr.logger.Info("failed pending requests of closed channel", zap.String("channel", ch.ID()), zap.Int("pending", n))
	}
}

// handleRequest runs one request through the middleware chain and, for two-way requests,
// writes the response.
func (svr *Server) handleRequest(ch channel.Channel, req *message.Request) {
	if !svr.track() {
		svr.reply(ch, req, nil, errShuttingDown)
		return
	}
	defer svr.wg.Done()

	env, ok := req.Data.(*message.RPCMessage)
	if !ok {
		svr.reply(ch, req, nil, &statusError{status: message.StatusBadRequest, msg: fmt.Sprintf("unsupported request data %T", req.Data)})
		return
	}
	raw, err := env.RawArguments()
	if err != nil {
		svr.reply(ch, req, nil, &statusError{status: message.StatusBadRequest, msg: "malformed arguments: " + err.Error()})
		return
	}
	args := make([]any, len(raw))
	for i, a := range raw {
		args[i] = a
	}
	inv := &message.Invocation{
		MethodName:     env.Method,
		ParameterTypes: env.ParamTypes,
		Arguments:      args,
		Attachments:    env.Attachments,
	}

	svr.mu.RLock()
	handler := svr.handler
	svr.mu.RUnlock()

	res, err := handler(context.Background(), inv)
	svr.reply(ch, req, res, err)
}

// track registers an in-flight request unless Shutdown has begun. The flag is read under
// the same lock Shutdown takes to set it, so no Add can race with Wait.
func (svr *Server) track() bool {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

func (svr *Server) reply(ch channel.Channel, req *message.Request, res *message.Result, err error) {
	if !req.TwoWay {
		if err != nil {
			svr.logger.Warn("oneway request failed", zap.Uint32("seq", req.ID), zap.Error(err))
		}
		return
	}
	resp := &message.Response{ID: req.ID, Codec: req.Codec, Data: replyMessage(res, err)}
	if err := ch.Send(resp, false); err != nil {
		svr.logger.Warn("failed to send response", zap.Uint32("seq", req.ID), zap.Error(err))
	}
}

var errShuttingDown = &statusError{status: message.StatusServerError, msg: "server is shutting down"}

// statusError is a dispatch failure with a dedicated response status.
type statusError struct {
	status message.Status
	msg    string
}

func (e *statusError) Error() string { return e.msg }

// replyMessage encodes the outcome of a handler as a response envelope. Business errors
// travel with StatusOK so the caller can tell them from transport failures.
func replyMessage(res *message.Result, err error) *message.RPCMessage {
	if err == nil {
		if res == nil {
			res = &message.Result{}
		}
		return &message.RPCMessage{Status: message.StatusOK, Attachments: res.Attachments, Payload: res.Value}
	}
	var se *statusError
	status := message.StatusServiceError
	switch {
	case errors.As(err, &se):
		status = se.status
	case rpcerr.IsTimeout(err):
		status = message.StatusServerTimeout
	case rpcerr.IsBiz(err):
		status = message.StatusOK
	}
	return &message.RPCMessage{Status: status, Error: err.Error()}
}

// Shutdown performs graceful shutdown:
//  1. Set shutdown flag (so the Accept error is recognized as intentional)
//  2. Close the listener (stop accepting new connections)
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Close the channels the server accepted
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	svr.shutdown.Store(true)
	ln := svr.listener
	svr.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	svr.channels.Range(func(_, v any) bool {
		v.(*channel.ConnChannel).Close()
		return true
	})
	return err
}

// businessHandler dispatches an invocation to the registered service named by its path
// attachment. It is wrapped by the middleware chain.
//
// Flow: find service → find method → reflect.New(args) → json.Unmarshal(arguments[0], args)
// → reflect.Call → json.Marshal(reply)
func (svr *Server) businessHandler(ctx context.Context, inv *message.Invocation) (*message.Result, error) {
	path := inv.Attachment(message.PathKey)
	svr.mu.RLock()
	svc := svr.serviceMap[path]
	svr.mu.RUnlock()
	if svc == nil {
		return nil, &statusError{status: message.StatusServiceNotFound, msg: fmt.Sprintf("service %q not found", path)}
	}
	mtype := svc.method[inv.MethodName]
	if mtype == nil {
		return nil, &statusError{status: message.StatusServiceNotFound, msg: fmt.Sprintf("method %s.%s not found", path, inv.MethodName)}
	}

	argv := reflect.New(mtype.ArgType)
	replyv := reflect.New(mtype.ReplyType)
	if len(inv.Arguments) > 0 {
		if err := decodeArg(inv.Arguments[0], argv); err != nil {
			return nil, &statusError{status: message.StatusBadRequest, msg: "decode arguments: " + err.Error()}
		}
	}

	if err := svc.Call(mtype, argv, replyv); err != nil {
		return nil, rpcerr.New(rpcerr.Biz, err.Error(), err)
	}

	payload, err := json.Marshal(replyv.Interface())
	if err != nil {
		return nil, &statusError{status: message.StatusServerError, msg: "encode reply: " + err.Error()}
	}
	return &message.Result{Value: payload}, nil
}
