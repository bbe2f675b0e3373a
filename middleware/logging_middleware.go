package middleware

import (
	"context"
	"time"

	"chan-rpc/message"
	"chan-rpc/rpcerr"

	"go.uber.org/zap"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (*message.Result, error) {
			start := time.Now()
			res, err := next(ctx, inv)
			fields := []zap.Field{
				zap.String("method", methodName(inv)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("invocation failed", append(fields, zap.Stringer("kind", rpcerr.KindOf(err)), zap.Error(err))...)
				return res, err
			}
			logger.Info("invocation", fields...)
			return res, nil
		}
	}
}
