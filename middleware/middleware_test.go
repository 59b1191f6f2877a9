package middleware

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"worker-rpc/message"
)

// echoHandler replies with a fixed payload.
func echoHandler(ctx context.Context, req *message.Envelope) *message.Envelope {
	return &message.Envelope{
		Method:  req.Method,
		Payload: json.RawMessage(`"ok"`),
		ID:      req.ID,
	}
}

// slowHandler sleeps 200ms before replying.
func slowHandler(ctx context.Context, req *message.Envelope) *message.Envelope {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(ctx, req)
}

func voidHandler(ctx context.Context, req *message.Envelope) *message.Envelope {
	return nil
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zap.NewNop())(echoHandler)

	req := &message.Envelope{Method: "add", ID: 1}
	resp := handler(context.Background(), req)

	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if string(resp.Payload) != `"ok"` {
		t.Fatalf("expect payload 'ok', got '%s'", resp.Payload)
	}

	if resp := LoggingMiddleware(nil)(voidHandler)(context.Background(), req); resp != nil {
		t.Fatalf("expect nil response to pass through, got %+v", resp)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), &message.Envelope{Method: "add", ID: 2})
	if resp.IsError() {
		t.Fatalf("expect no error, got '%s'", resp.ErrorMessage())
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), &message.Envelope{Method: "add", ID: 3})
	if !resp.IsError() || resp.ErrorMessage() != "request timed out" {
		t.Fatalf("expect timeout error, got %+v", resp)
	}
	if resp.ID != 3 {
		t.Fatalf("expect reply to keep id 3, got %d", resp.ID)
	}
}

func TestTimeoutTracksOverrun(t *testing.T) {
	var finished atomic.Bool
	handler := TimeOutMiddleware(20 * time.Millisecond)(func(ctx context.Context, req *message.Envelope) *message.Envelope {
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return echoHandler(ctx, req)
	})

	var wg sync.WaitGroup
	resp := handler(WithInflight(context.Background(), &wg), &message.Envelope{Method: "add", ID: 7})
	if resp.ErrorMessage() != "request timed out" {
		t.Fatalf("expect timeout error, got %+v", resp)
	}
	if finished.Load() {
		t.Fatal("expect the reply before the handler finished")
	}
	wg.Wait()
	if !finished.Load() {
		t.Fatal("expect the in-flight group to cover the overrunning handler")
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	req := &message.Envelope{Method: "add", ID: 4}

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), req)
		if resp.IsError() {
			t.Fatalf("request %d should pass, got error: %s", i, resp.ErrorMessage())
		}
	}

	resp := handler(context.Background(), req)
	if resp.ErrorMessage() != "rate limit exceeded" {
		t.Fatalf("request 3 should be rate limited, got: %+v", resp)
	}

	// introspection bypasses the limiter
	resp = handler(context.Background(), &message.Envelope{Method: message.MethodGetAllMethods, ID: 5})
	if resp.IsError() {
		t.Fatalf("introspection should not be limited, got: %s", resp.ErrorMessage())
	}
}

func TestRecover(t *testing.T) {
	var seen any
	handler := RecoverMiddleware(func(req *message.Envelope, recovered any) {
		seen = recovered
	})(func(ctx context.Context, req *message.Envelope) *message.Envelope {
		panic("boom")
	})

	resp := handler(context.Background(), &message.Envelope{Method: "explode", ID: 6})
	if !resp.IsError() || resp.ErrorMessage() != "boom" || resp.ID != 6 {
		t.Fatalf("expect error reply 'boom' for id 6, got %+v", resp)
	}
	if seen != "boom" {
		t.Fatalf("expect onPanic to see 'boom', got %v", seen)
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Envelope) *message.Envelope {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chained := Chain(mark("a"), LoggingMiddleware(nil), mark("b"), TimeOutMiddleware(500*time.Millisecond))
	resp := chained(echoHandler)(context.Background(), &message.Envelope{Method: "add"})

	if resp == nil || resp.IsError() {
		t.Fatalf("expect successful response, got %+v", resp)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expect middlewares to run in order [a b], got %v", order)
	}
}
