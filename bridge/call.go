package bridge

import (
	"encoding/json"
	"sync"
)

// Call is one invocation in flight. It settles exactly once, with the worker's
// reply or with an error.
type Call struct {
	Method string
	ID     uint32 // correlation ID; 0 if the call was never sent

	done  chan struct{}
	reply json.RawMessage
	err   error

	mu      sync.Mutex
	settled bool
	cleanup []func()
}

func newCall(method string) *Call {
	return &Call{Method: method, done: make(chan struct{})}
}

func failedCall(method string, err error) *Call {
	c := newCall(method)
	c.settle(nil, err, nil)
	return c
}

// settle records the outcome and runs cleanups. Only the first call has any effect;
// it reports whether this call was the one that settled c. release, if the call wins,
// runs before waiters are woken.
func (c *Call) settle(reply json.RawMessage, err error, release func()) bool {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		return false
	}
	c.settled = true
	c.reply = reply
	c.err = err
	cleanup := c.cleanup
	c.cleanup = nil
	c.mu.Unlock()

	if release != nil {
		release()
	}
	close(c.done)
	for _, f := range cleanup {
		f()
	}
	return true
}

// onSettle runs f when the call settles, or right away if it already has.
func (c *Call) onSettle(f func()) {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		f()
		return
	}
	c.cleanup = append(c.cleanup, f)
	c.mu.Unlock()
}

// Done is closed when the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call settles and returns the raw JSON reply.
func (c *Call) Wait() (json.RawMessage, error) {
	<-c.done
	return c.reply, c.err
}

// Decode waits for the reply and unmarshals it into v. A nil v discards the value.
func (c *Call) Decode(v any) error {
	reply, err := c.Wait()
	if err != nil || v == nil {
		return err
	}
	return json.Unmarshal(reply, v)
}
