// Package client dials a server and keeps one channel to it. The channel carries calls in
// both directions: the client invokes the server's services, and the server may invoke the
// callback services the client registered.
package client

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"strings"

	"chan-rpc/channel"
	"chan-rpc/config"
	"chan-rpc/invoker"
	"chan-rpc/middleware"
	"chan-rpc/server"

	"go.uber.org/zap"
)

type Client struct {
	ch       *channel.ConnChannel
	services *server.Server // serves callbacks arriving on ch
	logger   *zap.Logger
}

type options struct {
	cfg    *config.Config
	logger *zap.Logger
}

type Option func(*options)

// WithConfig sets the channel parameters: codec, timeout, per-method async/sent flags,
// heartbeat interval.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Dial connects to address. Register callback services right after Dial returns: requests
// for services not yet registered are answered with "service not found".
func Dial(ctx context.Context, network, address string, opts ...Option) (*Client, error) {
	o := &options{cfg: config.Empty(), logger: zap.L()}
	for _, opt := range opts {
		opt(o)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	c := &Client{
		services: server.NewServer(server.WithLogger(o.logger)),
		logger:   o.logger,
	}
	ch, err := channel.New(conn, c.services, channel.WithConfig(o.cfg), channel.WithLogger(o.logger))
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.ch = ch
	c.logger.Debug("dialed", zap.String("channel", ch.ID()), zap.Stringer("remote", ch.RemoteAddr()))
	return c, nil
}

// Register hosts rcvr as a callback service under its fully-qualified type name.
func (c *Client) Register(rcvr any) error {
	return c.services.Register(rcvr)
}

// RegisterName hosts rcvr as a callback service under name.
func (c *Client) RegisterName(name string, rcvr any) error {
	return c.services.RegisterName(name, rcvr)
}

// Use adds a middleware around the callback services.
func (c *Client) Use(mw middleware.Middleware) {
	c.services.Use(mw)
}

func (c *Client) Channel() *channel.ConnChannel { return c.ch }

// Invoker returns an invoker for serviceType on the server.
func (c *Client) Invoker(serviceType reflect.Type, opts ...invoker.Option) *invoker.ChannelInvoker {
	return invoker.New(serviceType, c.ch, "", append([]invoker.Option{invoker.WithLogger(c.logger)}, opts...)...)
}

// Call invokes serviceMethod, "<path>.<Method>", with args and decodes the reply.
func (c *Client) Call(ctx context.Context, serviceMethod string, args, reply any) error {
	dot := strings.LastIndex(serviceMethod, ".")
	if dot <= 0 || dot == len(serviceMethod)-1 {
		return fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}
	inv := c.Invoker(nil, invoker.WithPath(serviceMethod[:dot]))
	return invoker.Call(ctx, inv, serviceMethod[dot+1:], args, reply)
}

// Close closes the channel, failing calls still waiting for a reply.
func (c *Client) Close() error {
	return c.ch.Close()
}
