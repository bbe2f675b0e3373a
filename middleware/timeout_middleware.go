package middleware

import (
	"context"
	"time"

	"chan-rpc/message"
	"chan-rpc/rpcerr"
)

// TimeOutMiddleware bounds how long next may run. The handler keeps running in the
// background after the deadline; it should watch ctx.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (*message.Result, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				res *message.Result
				err error
			}
			done := make(chan outcome, 1)
			go func() {
				res, err := next(ctx, inv)
				done <- outcome{res, err}
			}()

			select {
			case o := <-done:
				return o.res, o.err
			case <-ctx.Done():
				return nil, rpcerr.Errorf(rpcerr.Timeout, "request timed out after %s: %s", timeout, methodName(inv))
			}
		}
	}
}
