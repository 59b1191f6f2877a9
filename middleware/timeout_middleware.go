package middleware

import (
	"context"
	"time"

	"worker-rpc/message"
)

// TimeOutMiddleware answers with an error reply when a call runs longer than timeout.
// The method keeps running in the background, tracked by the WithInflight group if ctx
// has one; methods that take a context see it cancelled.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) *message.Envelope {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			wg := inflight(ctx)
			if wg != nil {
				wg.Add(1)
			}
			done := make(chan *message.Envelope, 1)
			go func() {
				if wg != nil {
					defer wg.Done()
				}
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return message.NewErrorReply(req.ID, "request timed out")
			}
		}
	}
}
