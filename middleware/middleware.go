// Package middleware wraps invocation handlers in an onion of cross-cutting behaviour.
//
// The same HandlerFunc shape is used on both ends of a channel: a server wraps the method
// dispatcher with it, and a caller can wrap an invoker with Wrap. Chain(A, B, C)(h) runs
// A.before → B.before → C.before → h → C.after → B.after → A.after.
package middleware

import (
	"context"

	"chan-rpc/invoker"
	"chan-rpc/message"
)

type HandlerFunc func(ctx context.Context, inv *message.Invocation) (*message.Result, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Wrap returns an Invoker whose Invoke runs through mws before reaching inv.
// Retry and throttling policy for callers belongs here, outside the invoker.
func Wrap(inv invoker.Invoker, mws ...Middleware) invoker.Invoker {
	return &wrapped{Invoker: inv, handler: Chain(mws...)(inv.Invoke)}
}

type wrapped struct {
	invoker.Invoker
	handler HandlerFunc
}

func (w *wrapped) Invoke(ctx context.Context, inv *message.Invocation) (*message.Result, error) {
	return w.handler(ctx, inv)
}

// methodName renders "path.Method" for logs and metrics.
func methodName(inv *message.Invocation) string {
	if p := inv.Attachment(message.PathKey); p != "" {
		return p + "." + inv.MethodName
	}
	return inv.MethodName
}
