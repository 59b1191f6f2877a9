// Package bridge implements the controller end of a worker: a Proxy learns the worker's
// method registry once, then turns calls into correlated envelopes and hands back a
// Call that settles with the worker's reply.
//
//	Go("add", 2, 3) → check registry → Channel.Send(id) → worker
//	                                    recvLoop ← reply(id, "add") → Call settles
//
// Names missing from the registry fail locally and nothing is sent.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/zap"

	"worker-rpc/message"
	"worker-rpc/transport"
)

// Proxy forwards calls to one worker over one channel.
type Proxy struct {
	ch   *transport.Channel
	opts options
	log  *zap.Logger

	ready    chan struct{} // closed when introspection finishes
	readyErr error         // written before ready is closed
	names    []string
	methods  map[string]struct{}
}

// New wraps conn and starts asking the worker for its methods. Calls made before that
// answer arrives fail with ErrNotReady; use Ready or Connect to wait for it.
func New(conn io.ReadWriteCloser, opts ...Option) *Proxy {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}

	p := &Proxy{
		opts:  o,
		log:   o.logger,
		ready: make(chan struct{}),
	}
	p.ch = transport.NewChannel(conn, o.codec, o.heartbeat, o.logger)
	go p.introspect()
	return p
}

// Connect is New followed by Ready. The connection is closed if the worker never
// becomes usable.
func Connect(ctx context.Context, conn io.ReadWriteCloser, opts ...Option) (*Proxy, error) {
	p := New(conn, opts...)
	if err := p.Ready(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Proxy) introspect() {
	ctx := context.Background()
	if p.opts.introspectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.introspectTimeout)
		defer cancel()
	}

	var names []string
	err := p.send(ctx, message.MethodGetAllMethods, nil).Decode(&names)
	if err != nil {
		p.readyErr = fmt.Errorf("introspect worker: %w", err)
	} else {
		p.names = names
		p.methods = make(map[string]struct{}, len(names))
		for _, name := range names {
			p.methods[name] = struct{}{}
		}
		p.readyErr = p.missing(p.opts.require)
	}

	if p.readyErr != nil {
		p.log.Warn("worker not usable", zap.Error(p.readyErr))
	} else {
		p.log.Debug("worker methods known", zap.Strings("methods", names))
	}
	close(p.ready)
}

// Ready blocks until the worker's method registry is known or ctx is done.
func (p *Proxy) Ready(ctx context.Context) error {
	select {
	case <-p.ready:
		return p.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Methods returns the worker's method registry, or nil before it is known.
func (p *Proxy) Methods() []string {
	select {
	case <-p.ready:
		return slices.Clone(p.names)
	default:
		return nil
	}
}

// Has reports whether the worker exposes method.
func (p *Proxy) Has(method string) bool {
	select {
	case <-p.ready:
		_, ok := p.methods[method]
		return ok
	default:
		return false
	}
}

// Require checks that the worker exposes every named method.
func (p *Proxy) Require(methods ...string) error {
	select {
	case <-p.ready:
	default:
		return ErrNotReady
	}
	if p.methods == nil {
		return p.readyErr
	}
	return p.missing(methods)
}

func (p *Proxy) missing(methods []string) error {
	var absent []string
	for _, m := range methods {
		if _, ok := p.methods[m]; !ok {
			absent = append(absent, m)
		}
	}
	if len(absent) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompatible, strings.Join(absent, ", "))
	}
	return nil
}

// check decides whether method may be sent at all.
func (p *Proxy) check(method string) error {
	select {
	case <-p.ready:
	default:
		return ErrNotReady
	}
	if p.methods == nil {
		return p.readyErr
	}
	if _, ok := p.methods[method]; !ok {
		return fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	return nil
}

// Invoke sends method with payload as the envelope payload. A nil payload is sent
// absent, a json.RawMessage as is, anything else is JSON-encoded.
func (p *Proxy) Invoke(ctx context.Context, method string, payload any) *Call {
	if err := p.check(method); err != nil {
		return failedCall(method, err)
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return failedCall(method, fmt.Errorf("encode %s payload: %w", method, err))
	}
	return p.send(ctx, method, raw)
}

// Go sends method with args as a JSON array, spread over the worker method's parameters.
func (p *Proxy) Go(ctx context.Context, method string, args ...any) *Call {
	if args == nil {
		args = []any{}
	}
	return p.Invoke(ctx, method, args)
}

// Call invokes method and waits, decoding the result into reply (which may be nil).
func (p *Proxy) Call(ctx context.Context, method string, reply any, args ...any) error {
	return p.Go(ctx, method, args...).Decode(reply)
}

// Notify sends a call without waiting for or expecting a reply, for methods that
// return nothing.
func (p *Proxy) Notify(ctx context.Context, method string, args ...any) error {
	if err := p.check(method); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if args == nil {
		args = []any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", method, err)
	}
	_, err = p.ch.Send(method, raw, nil)
	return err
}

// send registers the call and writes it. The call settles on the first reply tagged
// with its method name or with the error tag; other tags leave it pending.
func (p *Proxy) send(ctx context.Context, method string, payload json.RawMessage) *Call {
	if err := ctx.Err(); err != nil {
		return failedCall(method, err)
	}

	cancel := context.CancelFunc(func() {})
	if p.opts.callTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.opts.callTimeout)
	}

	call := newCall(method)
	handler := func(reply *message.Envelope, err error) bool {
		if err != nil {
			call.settle(nil, err, nil)
			return true
		}
		// drop the entry before waking the caller so Pending never counts a settled call
		release := func() { p.ch.Forget(reply.ID) }
		switch reply.Method {
		case method:
			call.settle(reply.Payload, nil, release)
			return true
		case message.TagError:
			call.settle(nil, &RemoteError{Method: method, Message: reply.ErrorMessage()}, release)
			return true
		}
		p.log.Debug("ignoring reply with unrelated tag",
			zap.String("method", method), zap.Uint32("id", reply.ID), zap.String("tag", reply.Method))
		return false
	}

	id, err := p.ch.Send(method, payload, handler)
	if err != nil {
		cancel()
		call.settle(nil, fmt.Errorf("send %s: %w", method, err), nil)
		return call
	}
	call.ID = id

	// the entry is forgotten only if cancellation won; otherwise the reply or the
	// channel failure already removed it
	stop := context.AfterFunc(ctx, func() {
		call.settle(nil, ctx.Err(), func() { p.ch.Forget(id) })
	})
	call.onSettle(func() {
		stop()
		cancel()
	})
	return call
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(payload)
}

// Pending returns the number of calls awaiting a reply.
func (p *Proxy) Pending() int {
	return p.ch.Pending()
}

// Done is closed once the channel has failed or been closed.
func (p *Proxy) Done() <-chan struct{} {
	return p.ch.Done()
}

// Err returns why the channel stopped, or nil while it is running.
func (p *Proxy) Err() error {
	return p.ch.Err()
}

// Close closes the channel. Pending calls fail with ErrClosed.
func (p *Proxy) Close() error {
	return p.ch.Close()
}
