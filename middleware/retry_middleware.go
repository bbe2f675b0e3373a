package middleware

import (
	"context"
	"time"

	"chan-rpc/message"
	"chan-rpc/rpcerr"

	"go.uber.org/zap"
)

// RetryMiddleware retries timeout and network failures with exponential backoff.
// Use it on the caller side only: a retried call may have run on the peer already.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (*message.Result, error) {
			res, err := next(ctx, inv)
			for i := 0; i < maxRetries && retryable(err); i++ {
				logger.Info("retrying invocation",
					zap.Int("attempt", i+1),
					zap.String("method", methodName(inv)),
					zap.Error(err))

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, err
				case <-timer.C:
				}
				res, err = next(ctx, inv)
			}
			return res, err
		}
	}
}

func retryable(err error) bool {
	return err != nil && (rpcerr.IsTimeout(err) || rpcerr.IsNetwork(err))
}
