package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"worker-rpc/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			start := time.Now()
			reply := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Uint32("id", req.ID),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case reply == nil:
				logger.Debug("call completed without reply", fields...)
			case reply.IsError():
				logger.Warn("call failed", append(fields, zap.String("error", reply.ErrorMessage()))...)
			default:
				logger.Debug("call completed", fields...)
			}
			return reply
		}
	}
}
