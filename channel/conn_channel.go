package channel

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"chan-rpc/codec"
	"chan-rpc/config"
	"chan-rpc/message"
	"chan-rpc/protocol"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultHeartbeat = 30 * time.Second
	writeQueueLen    = 64
)

// ConnChannel is a Channel over a net.Conn.
//
// One goroutine reads frames and hands them to the Handler, one goroutine writes frames
// queued by Send. Everything written to the conn goes through the writer, so frames from
// concurrent senders never interleave.
//
//	Send(req A) ──┐
//	Send(resp B) ─┼──→ writeCh ──→ writeLoop ──→ conn
//	heartbeat ────┘
//
//	readLoop: conn ──→ request  → go handler.Received
//	                ──→ response → handler.Received (routes to the waiting future)
type ConnChannel struct {
	id      string
	conn    net.Conn
	cfg     *config.Config
	codec   codec.Codec
	handler Handler
	logger  *zap.Logger

	attrs   sync.Map
	writeCh chan *writeReq

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

type writeReq struct {
	frame []byte
	done  chan error
}

type Option func(*ConnChannel)

// WithConfig sets the channel's parameters. The "codec" key selects the default body
// codec and "heartbeat" the keepalive interval (0 disables it).
func WithConfig(cfg *config.Config) Option {
	return func(c *ConnChannel) { c.cfg = cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *ConnChannel) { c.logger = l }
}

// New wraps conn and starts its read, write and heartbeat loops. handler may be nil, in
// which case inbound requests are dropped.
func New(conn net.Conn, handler Handler, opts ...Option) (*ConnChannel, error) {
	c := &ConnChannel{
		id:      uuid.NewString(),
		conn:    conn,
		cfg:     config.Empty(),
		handler: handler,
		logger:  zap.L(),
		writeCh: make(chan *writeReq, writeQueueLen),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	cdc, err := codec.ByName(c.cfg.GetDefault(config.CodecKey, codec.DefaultName))
	if err != nil {
		return nil, err
	}
	c.codec = cdc
	if c.handler == nil {
		c.handler = dropHandler{}
	}
	c.logger = c.logger.With(zap.String("channel", c.id), zap.Stringer("remote", conn.RemoteAddr()))

	go c.readLoop()
	go c.writeLoop()
	if interval := c.cfg.Duration(config.HeartbeatKey, defaultHeartbeat); interval > 0 {
		go c.heartbeatLoop(interval)
	}
	return c, nil
}

func (c *ConnChannel) ID() string             { return c.id }
func (c *ConnChannel) Config() *config.Config { return c.cfg }
func (c *ConnChannel) LocalAddr() net.Addr    { return c.conn.LocalAddr() }
func (c *ConnChannel) RemoteAddr() net.Addr   { return c.conn.RemoteAddr() }
func (c *ConnChannel) IsConnected() bool      { return !c.closed.Load() }
func (c *ConnChannel) IsClosed() bool         { return c.closed.Load() }

// Done is closed once the channel is closed.
func (c *ConnChannel) Done() <-chan struct{} { return c.done }

// Close closes the connection. Only the channel's creator should call it.
func (c *ConnChannel) Close() error {
	return c.shutdown(nil)
}

func (c *ConnChannel) Attribute(key string) any {
	v, _ := c.attrs.Load(key)
	return v
}

func (c *ConnChannel) HasAttribute(key string) bool {
	_, ok := c.attrs.Load(key)
	return ok
}

func (c *ConnChannel) SetAttribute(key string, value any) {
	c.attrs.Store(key, value)
}

func (c *ConnChannel) RemoveAttribute(key string) {
	c.attrs.Delete(key)
}

func (c *ConnChannel) Send(msg any, sent bool) error {
	if c.closed.Load() {
		return ErrClosed
	}
	frame, err := c.encode(msg)
	if err != nil {
		return err
	}

	req := &writeReq{frame: frame, done: make(chan error, 1)}
	select {
	case c.writeCh <- req:
	case <-c.done:
		return ErrClosed
	}
	if !sent {
		return nil
	}

	timeout := c.cfg.Duration(config.TimeoutKey, config.DefaultTimeout)
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-req.done:
		return err
	case <-c.done:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("send to %s not written within %s", c.conn.RemoteAddr(), timeout)
	}
}

func (c *ConnChannel) encode(msg any) ([]byte, error) {
	var (
		h    protocol.Header
		cdc  = c.codec
		body any
	)
	switch m := msg.(type) {
	case *message.Request:
		if m.Event {
			h = protocol.Header{CodecType: byte(cdc.Type()), MsgType: protocol.MsgTypeHeartbeat, Seq: m.ID}
			return frameBytes(&h, nil)
		}
		if m.Codec != "" {
			named, err := codec.ByName(m.Codec)
			if err != nil {
				return nil, err
			}
			cdc = named
		}
		env, err := envelope(m.Data)
		if err != nil {
			return nil, err
		}
		h = protocol.Header{MsgType: protocol.MsgTypeOneway, Seq: m.ID}
		if m.TwoWay {
			h.MsgType = protocol.MsgTypeRequest
		}
		body = env
	case *message.Response:
		if m.Codec != "" {
			named, err := codec.ByName(m.Codec)
			if err != nil {
				return nil, err
			}
			cdc = named
		}
		h = protocol.Header{MsgType: protocol.MsgTypeResponse, Seq: m.ID}
		body = m.Data
		if m.Data == nil {
			body = &message.RPCMessage{}
		}
	default:
		return nil, fmt.Errorf("channel: unsupported message type %T", msg)
	}

	payload, err := cdc.Encode(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode body")
	}
	h.CodecType = byte(cdc.Type())
	return frameBytes(&h, payload)
}

func envelope(data any) (*message.RPCMessage, error) {
	switch d := data.(type) {
	case *message.Invocation:
		return d.Envelope()
	case *message.RPCMessage:
		return d, nil
	}
	return nil, fmt.Errorf("channel: unsupported request data %T", data)
}

type frameBuffer []byte

func (b *frameBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

func frameBytes(h *protocol.Header, body []byte) ([]byte, error) {
	buf := make(frameBuffer, 0, protocol.HeaderSize+len(body))
	if err := protocol.Encode(&buf, h, body); err != nil {
		return nil, err
	}
	return buf, nil
}

// readLoop is the only reader of the conn: frame boundaries can only be parsed sequentially.
func (c *ConnChannel) readLoop() {
	for {
		header, body, err := protocol.Decode(c.conn)
		if err != nil {
			c.shutdown(err)
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			c.logger.Debug("heartbeat received", zap.Uint32("seq", header.Seq))

		case protocol.MsgTypeRequest, protocol.MsgTypeOneway:
			cdc := codec.GetCodec(codec.CodecType(header.CodecType))
			msg := &message.RPCMessage{}
			twoWay := header.MsgType == protocol.MsgTypeRequest
			if err := cdc.Decode(body, msg); err != nil {
				c.logger.Warn("malformed request", zap.Uint32("seq", header.Seq), zap.Error(err))
				if twoWay {
					c.Send(&message.Response{ID: header.Seq, Codec: cdc.Name(), Data: &message.RPCMessage{
						Status: message.StatusBadRequest,
						Error:  "malformed request: " + err.Error(),
					}}, false)
				}
				continue
			}
			req := &message.Request{ID: header.Seq, TwoWay: twoWay, Codec: cdc.Name(), Data: msg}
			// Requests are served in parallel so a slow handler does not block the conn.
			go c.handler.Received(c, req)

		case protocol.MsgTypeResponse:
			cdc := codec.GetCodec(codec.CodecType(header.CodecType))
			msg := &message.RPCMessage{}
			if err := cdc.Decode(body, msg); err != nil {
				msg = &message.RPCMessage{Status: message.StatusBadRequest, Error: "malformed response: " + err.Error()}
			}
			c.handler.Received(c, &message.Response{ID: header.Seq, Codec: cdc.Name(), Data: msg})
		}
	}
}

func (c *ConnChannel) writeLoop() {
	for {
		select {
		case req := <-c.writeCh:
			_, err := c.conn.Write(req.frame)
			req.done <- err
			if err != nil {
				c.shutdown(errors.Wrap(err, "write frame"))
				return
			}
		case <-c.done:
			return
		}
	}
}

// heartbeatLoop keeps idle connections from being reaped by the peer or middleboxes.
func (c *ConnChannel) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Send(&message.Request{Event: true}, false); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown closes the channel once. err is nil for a local Close.
func (c *ConnChannel) shutdown(err error) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		closeErr = c.conn.Close()
		if err != nil {
			c.logger.Info("channel disconnected", zap.Error(err))
		} else {
			c.logger.Debug("channel closed")
		}
		c.handler.Disconnected(c, err)
	})
	return closeErr
}

type dropHandler struct{}

func (dropHandler) Received(ch Channel, msg any) {
	zap.L().Warn("no handler, dropping message", zap.String("channel", ch.ID()), zap.String("type", fmt.Sprintf("%T", msg)))
}

func (dropHandler) Disconnected(Channel, error) {}
