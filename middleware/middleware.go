// Package middleware wraps the worker's dispatch handler.
//
// A handler receives a call envelope and returns the reply envelope, or nil when the
// called method produced no value and nothing should be sent back.
package middleware

import (
	"context"
	"sync"

	"worker-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Envelope) *message.Envelope

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one is the outermost:
// Chain(A, B)(h) runs A.before, B.before, h, B.after, A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type inflightKey struct{}

// WithInflight attaches wg to ctx. A middleware that answers before the handler below
// it has returned adds that handler to wg, so the host can wait for it to finish.
func WithInflight(ctx context.Context, wg *sync.WaitGroup) context.Context {
	return context.WithValue(ctx, inflightKey{}, wg)
}

func inflight(ctx context.Context) *sync.WaitGroup {
	wg, _ := ctx.Value(inflightKey{}).(*sync.WaitGroup)
	return wg
}
