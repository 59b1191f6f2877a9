package middleware

import (
	"context"
	"fmt"

	"worker-rpc/message"
)

// RecoverMiddleware turns a panic anywhere below it into an error reply.
// onPanic, if set, receives the recovered value after the reply is built.
func RecoverMiddleware(onPanic func(req *message.Envelope, recovered any)) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (reply *message.Envelope) {
			defer func() {
				if r := recover(); r != nil {
					reply = message.NewErrorReply(req.ID, fmt.Sprint(r))
					if onPanic != nil {
						onPanic(req, r)
					}
				}
			}()
			return next(ctx, req)
		}
	}
}
