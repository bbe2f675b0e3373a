// Package transport turns a client-shaped endpoint into request/response semantics.
//
// A Session is a thin, stateless view over a Client: each request gets a unique sequence id
// and a Future registered in a process-wide pending table before the frame is sent. Whoever
// reads the connection hands responses to Received, which routes them to the matching
// Future by id. Responses may arrive in any order.
//
//	goroutine-1 ──Request(seq=1)──┐
//	goroutine-2 ──Request(seq=2)──┼──→ Client.Send ──→ peer
//	goroutine-3 ──Request(seq=3)──┘
//
//	read loop: ←── response(seq=2) → Received → pending[2] → goroutine-2 wakes up
//
// Sessions never cache anything across calls, so creating one per call is cheap.
package transport

import (
	"net"

	"chan-rpc/config"
)

// Client is the shape a Session needs from the thing it sends on.
type Client interface {
	// ID identifies the underlying connection. Pending requests are failed by ID when
	// that connection goes away.
	ID() string
	Config() *config.Config
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	IsConnected() bool
	IsClosed() bool
	Close() error
	Reconnect() error
	Reset(cfg *config.Config) error
	Send(msg any, sent bool) error

	Attribute(key string) any
	HasAttribute(key string) bool
	SetAttribute(key string, value any)
	RemoveAttribute(key string)
}
