package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"worker-rpc/message"
)

// RateLimitMiddleware rejects calls beyond a token-bucket rate of r per second with the given burst.
// Introspection is never limited so a controller can always connect.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			if req.Method != message.MethodGetAllMethods && !limiter.Allow() {
				return message.NewErrorReply(req.ID, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
