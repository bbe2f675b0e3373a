package middleware

import (
	"context"

	"chan-rpc/message"
	"chan-rpc/rpcerr"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the token bucket is empty.
var ErrRateLimited = rpcerr.New(rpcerr.Biz, "rate limit exceeded", nil)

// RateLimitMiddleware rejects invocations beyond r per second, with the given burst.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (*message.Result, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, inv)
		}
	}
}
