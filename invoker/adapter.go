package invoker

import (
	"net"

	"chan-rpc/channel"
	"chan-rpc/codec"
	"chan-rpc/config"
	"chan-rpc/rpcerr"
	"chan-rpc/transport"
)

// ChannelAdapter presents a Channel as a transport.Client so a Session can be built on it.
// It has no networking of its own: state and I/O go straight to the wrapped channel, and the
// adapter only adds the codec entry to the advertised config.
type ChannelAdapter struct {
	ch  channel.Channel
	cfg *config.Config
}

var _ transport.Client = (*ChannelAdapter)(nil)

func NewChannelAdapter(ch channel.Channel) *ChannelAdapter {
	a := &ChannelAdapter{ch: ch}
	base := config.Empty()
	if ch != nil {
		base = ch.Config()
	}
	a.cfg = base.With(config.CodecKey, codec.DefaultName)
	return a
}

func (a *ChannelAdapter) ID() string {
	if a.ch == nil {
		return ""
	}
	return a.ch.ID()
}

func (a *ChannelAdapter) Config() *config.Config { return a.cfg }

func (a *ChannelAdapter) LocalAddr() net.Addr {
	if a.ch == nil {
		return nil
	}
	return a.ch.LocalAddr()
}

func (a *ChannelAdapter) RemoteAddr() net.Addr {
	if a.ch == nil {
		return nil
	}
	return a.ch.RemoteAddr()
}

func (a *ChannelAdapter) IsConnected() bool {
	return a.ch != nil && a.ch.IsConnected()
}

func (a *ChannelAdapter) IsClosed() bool {
	return a.ch == nil || a.ch.IsClosed()
}

// Close closes the wrapped channel. Invokers never call it.
func (a *ChannelAdapter) Close() error {
	if a.ch == nil {
		return nil
	}
	return a.ch.Close()
}

// Reconnect does nothing: connection setup belongs to whoever created the channel.
func (a *ChannelAdapter) Reconnect() error {
	return nil
}

// Reset always fails, the adapter cannot be reconfigured.
func (a *ChannelAdapter) Reset(*config.Config) error {
	return rpcerr.New(rpcerr.Config, "channel invoker can not reset", nil)
}

func (a *ChannelAdapter) Send(msg any, sent bool) error {
	if a.ch == nil {
		return channel.ErrClosed
	}
	return a.ch.Send(msg, sent)
}

func (a *ChannelAdapter) Attribute(key string) any {
	if a.ch == nil {
		return nil
	}
	return a.ch.Attribute(key)
}

func (a *ChannelAdapter) HasAttribute(key string) bool {
	return a.ch != nil && a.ch.HasAttribute(key)
}

func (a *ChannelAdapter) SetAttribute(key string, value any) {
	if a.ch != nil {
		a.ch.SetAttribute(key, value)
	}
}

func (a *ChannelAdapter) RemoveAttribute(key string) {
	if a.ch != nil {
		a.ch.RemoveAttribute(key)
	}
}
