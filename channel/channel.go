// Package channel wraps an established connection as a Channel: an externally owned,
// bidirectional endpoint that can send framed messages, report its state and keep
// per-connection attributes.
//
// Whoever creates a Channel owns its lifecycle. Components handed a Channel (invokers,
// sessions) use it but never close it.
package channel

import (
	"errors"
	"net"

	"chan-rpc/config"
)

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("channel is closed")

type Channel interface {
	// ID uniquely identifies the channel for the lifetime of the process.
	ID() string
	Config() *config.Config
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	IsConnected() bool
	IsClosed() bool
	Close() error

	// Send writes msg, a *message.Request or *message.Response. When sent is true Send
	// waits until the frame is written (bounded by the "timeout" parameter); otherwise it
	// only queues the frame.
	Send(msg any, sent bool) error

	// Attribute store: last write wins, no ordering guarantees.
	Attribute(key string) any
	HasAttribute(key string) bool
	SetAttribute(key string, value any)
	RemoveAttribute(key string)
}

// Handler receives what arrives on a channel. Received gets a *message.Request (served on
// its own goroutine) or a *message.Response (delivered on the read loop, keep it short).
type Handler interface {
	Received(ch Channel, msg any)
	Disconnected(ch Channel, err error)
}
