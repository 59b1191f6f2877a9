// Package worker implements the worker end of the bridge: an Endpoint owns one service
// instance, executes the calls that arrive on its channels and writes back replies.
//
// Call processing pipeline:
//
//	read loop (one per channel) → decode call
//	  → Middleware Chain → dispatch (reflect.Call) → encode reply → write
//	  → report fault, if the method failed
//
// By default calls run one at a time in arrival order on the read loop, so a service
// written for a single-threaded worker needs no locking.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"worker-rpc/codec"
	"worker-rpc/message"
	"worker-rpc/middleware"
	"worker-rpc/protocol"
	"worker-rpc/registry"
)

// Endpoint serves one service instance over any number of channels.
type Endpoint struct {
	svc  *service
	opts options
	log  *zap.Logger

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(...(dispatch)), built on first serve
	buildOnce   sync.Once

	wg            sync.WaitGroup // in-flight calls
	shutdown      atomic.Bool
	listener      net.Listener
	registry      registry.Registry
	advertiseAddr string

	mu    sync.Mutex
	conns map[io.ReadWriteCloser]struct{}
}

// NewEndpoint creates an endpoint exposing the methods of rcvr.
func NewEndpoint(rcvr any, opts ...Option) (*Endpoint, error) {
	svc, err := newService(rcvr)
	if err != nil {
		return nil, err
	}

	o := options{weight: 1, leaseTTL: 10}
	for _, opt := range opts {
		opt(&o)
	}
	if o.serviceName == "" {
		o.serviceName = svc.name
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	log := o.logger.With(zap.String("service", o.serviceName))
	if o.faultHandler == nil {
		o.faultHandler = func(f *Fault) {
			log.Error("worker method failed",
				zap.String("method", f.Method),
				zap.Uint32("id", f.ID),
				zap.Error(f.Err))
		}
	}

	return &Endpoint{
		svc:   svc,
		opts:  o,
		log:   log,
		conns: make(map[io.ReadWriteCloser]struct{}),
	}, nil
}

// Name returns the service name announced to registries.
func (e *Endpoint) Name() string {
	return e.opts.serviceName
}

// Methods returns the method registry answered to getAllMethods.
func (e *Endpoint) Methods() []string {
	return slices.Clone(e.svc.names)
}

// Use registers a middleware. Middlewares apply in the order added and must be
// registered before the endpoint starts serving.
func (e *Endpoint) Use(mw middleware.Middleware) {
	e.middlewares = append(e.middlewares, mw)
}

func (e *Endpoint) chain() middleware.HandlerFunc {
	e.buildOnce.Do(func() {
		e.handler = middleware.Chain(e.middlewares...)(e.dispatch)
	})
	return e.handler
}

// ServeConn serves a single channel until it is closed by the peer or by Shutdown.
// It returns nil on a clean close.
func (e *Endpoint) ServeConn(conn io.ReadWriteCloser) error {
	handler := e.chain()

	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.conns, conn)
		e.mu.Unlock()
		conn.Close()
	}()

	writeMu := &sync.Mutex{} // shared by every reply written on this channel
	var overrun sync.WaitGroup // calls answered early by middleware but still running
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if e.shutdown.Load() || isClosed(err) {
				return nil
			}
			e.log.Warn("channel read failed", zap.Error(err))
			return err
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeReply:
			e.log.Warn("unexpected reply frame on worker channel", zap.Uint32("id", header.Seq))
			continue
		}

		e.wg.Add(1)
		if e.opts.concurrent {
			go func() {
				defer e.wg.Done()
				e.handleCall(header, body, conn, writeMu, handler, &e.wg)
			}()
		} else {
			// the next call starts only once this one has really returned
			e.handleCall(header, body, conn, writeMu, handler, &overrun)
			overrun.Wait()
			e.wg.Done()
		}
	}
}

// handleCall decodes one call, runs it through the handler chain and writes the reply, if any.
// Handlers still running after their reply was built are added to inflight.
func (e *Endpoint) handleCall(header *protocol.Header, body []byte, conn io.Writer, writeMu *sync.Mutex, handler middleware.HandlerFunc, inflight *sync.WaitGroup) {
	c := codec.GetCodec(codec.CodecType(header.CodecType))

	req := &message.Envelope{}
	if err := c.Decode(body, req); err != nil {
		e.log.Warn("malformed call", zap.Uint32("id", header.Seq), zap.Error(err))
		e.writeReply(conn, writeMu, c, message.NewErrorReply(header.Seq, "malformed call: "+err.Error()))
		return
	}
	req.ID = header.Seq

	slot := &faultSlot{report: e.opts.faultHandler}
	ctx := context.WithValue(context.Background(), faultSlotKey{}, slot)
	ctx = middleware.WithInflight(ctx, inflight)

	reply := handler(ctx, req)
	if reply != nil {
		reply.ID = req.ID
		e.writeReply(conn, writeMu, c, reply)
	}
	slot.flush()
}

func (e *Endpoint) writeReply(conn io.Writer, writeMu *sync.Mutex, c codec.Codec, reply *message.Envelope) {
	body, err := c.Encode(reply)
	if err != nil {
		e.log.Error("failed to encode reply", zap.String("method", reply.Method), zap.Error(err))
		return
	}

	header := protocol.Header{
		CodecType: byte(c.Type()),
		MsgType:   protocol.MsgTypeReply,
		Seq:       reply.ID,
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.Encode(conn, &header, body); err != nil {
		e.log.Warn("failed to write reply", zap.Uint32("id", reply.ID), zap.Error(err))
	}
}

// dispatch is the innermost handler: introspection, method lookup, argument decoding
// and the reflective call.
func (e *Endpoint) dispatch(ctx context.Context, req *message.Envelope) (reply *message.Envelope) {
	if req.Method == message.MethodGetAllMethods {
		payload, _ := json.Marshal(e.svc.names)
		return &message.Envelope{Method: req.Method, Payload: payload, ID: req.ID}
	}

	mt, ok := e.svc.method[req.Method]
	if !ok {
		return e.fail(ctx, req, fmt.Errorf("%w: %s", ErrMethodNotFound, req.Method))
	}

	args, err := e.svc.decodeArgs(req.Method, mt, req.Payload)
	if err != nil {
		return e.fail(ctx, req, err)
	}

	defer func() {
		if r := recover(); r != nil {
			reply = e.fail(ctx, req, &PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	result, present, err := e.svc.call(ctx, mt, args)
	if err != nil {
		return e.fail(ctx, req, err)
	}
	if !present {
		return nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return e.fail(ctx, req, fmt.Errorf("encode result: %w", err))
	}
	return &message.Envelope{Method: req.Method, Payload: payload, ID: req.ID}
}

// fail builds the error reply and queues the fault for reporting once the reply is out.
func (e *Endpoint) fail(ctx context.Context, req *message.Envelope, err error) *message.Envelope {
	f := &Fault{Method: req.Method, ID: req.ID, Err: err}
	if slot, ok := ctx.Value(faultSlotKey{}).(*faultSlot); ok {
		slot.set(f)
	} else {
		e.opts.faultHandler(f)
	}
	return message.NewErrorReply(req.ID, err.Error())
}

// ListenAndServe listens on the network address and then calls Serve.
func (e *Endpoint) ListenAndServe(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return e.Serve(listener, advertiseAddr, reg)
}

// Serve accepts channels on listener, one goroutine each, until Shutdown.
//
// If reg is non-nil the endpoint is announced under its service name with advertiseAddr
// (a routable address, unlike a listen address such as ":8080") and its method registry.
func (e *Endpoint) Serve(listener net.Listener, advertiseAddr string, reg registry.Registry) error {
	if advertiseAddr == "" {
		advertiseAddr = listener.Addr().String()
	}

	e.mu.Lock()
	if e.shutdown.Load() {
		e.mu.Unlock()
		listener.Close()
		return nil
	}
	e.listener = listener
	e.advertiseAddr = advertiseAddr
	e.registry = reg
	e.mu.Unlock()

	if reg != nil {
		err := reg.Register(e.opts.serviceName, registry.ServiceInstance{
			Addr:    advertiseAddr,
			Weight:  e.opts.weight,
			Version: e.opts.version,
			Methods: e.Methods(),
		}, e.opts.leaseTTL)
		if err != nil {
			listener.Close()
			return fmt.Errorf("register %s: %w", e.opts.serviceName, err)
		}
		e.log.Info("worker registered", zap.String("addr", advertiseAddr), zap.Strings("methods", e.svc.names))

		// Shutdown may have deregistered before the entry was written
		if e.shutdown.Load() {
			e.deregister(reg, advertiseAddr)
			return nil
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if e.shutdown.Load() {
				return nil
			}
			return err
		}
		go func() {
			if err := e.ServeConn(conn); err != nil {
				e.log.Debug("channel closed with error", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
		}()
	}
}

// Shutdown performs graceful shutdown:
//  1. deregister from the registry so controllers stop picking this worker
//  2. stop accepting channels
//  3. wait for in-flight calls (bounded by timeout)
//  4. close the remaining channels
func (e *Endpoint) Shutdown(timeout time.Duration) error {
	e.mu.Lock()
	e.shutdown.Store(true)
	reg, addr, listener := e.registry, e.advertiseAddr, e.listener
	e.mu.Unlock()

	if reg != nil {
		e.deregister(reg, addr)
	}
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.New("timeout waiting for in-flight calls to finish")
	}

	e.mu.Lock()
	for conn := range e.conns {
		conn.Close()
	}
	e.mu.Unlock()
	return err
}

func (e *Endpoint) deregister(reg registry.Registry, addr string) {
	if err := reg.Deregister(e.opts.serviceName, addr); err != nil {
		e.log.Warn("deregister failed", zap.Error(err))
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
