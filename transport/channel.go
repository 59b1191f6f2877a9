// Package transport implements the controller end of a worker channel: it sends calls,
// keeps the pending-call table and routes each reply to the call it belongs to.
//
// Many goroutines may call concurrently over one channel. Each call gets its own
// correlation ID, and a single recvLoop reads replies and hands each one to the
// handler registered under that ID:
//
//	goroutine-1 ──Send(id=1)──┐
//	goroutine-2 ──Send(id=2)──┼──→ channel ──→ Worker
//	goroutine-3 ──Send(id=3)──┘
//
//	recvLoop:  ←── reply(id=2) → pending[2] handler → goroutine-2 wakes up
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"worker-rpc/codec"
	"worker-rpc/message"
	"worker-rpc/protocol"
)

// ErrClosed is reported to pending calls when the channel is closed locally.
var ErrClosed = errors.New("channel closed")

// Handler receives the replies carrying its call's correlation ID.
// It returns true once the call is settled; the entry is then removed from the table.
// When the channel fails, the handler is called once with a nil envelope and the error.
type Handler func(reply *message.Envelope, err error) bool

// entry is one row of the pending-call table. Rows are compared by pointer so a
// late removal never deletes a newer call that reused the ID.
type entry struct {
	h Handler
}

// Channel multiplexes calls over a single ordered byte stream.
type Channel struct {
	conn  io.ReadWriteCloser
	codec codec.Codec
	log   *zap.Logger

	sending sync.Mutex // serializes frame writes
	seq     uint32     // last correlation ID handed out, guarded by mu

	mu      sync.Mutex
	pending map[uint32]*entry
	stopped bool

	done      chan struct{}
	err       error
	closeOnce sync.Once
}

// NewChannel wraps conn and starts the reply loop. A positive heartbeat interval also
// starts a loop writing keepalive frames.
func NewChannel(conn io.ReadWriteCloser, codecType codec.CodecType, heartbeat time.Duration, log *zap.Logger) *Channel {
	if log == nil {
		log = Logger()
	}
	ch := &Channel{
		conn:    conn,
		codec:   codec.GetCodec(codecType),
		log:     log,
		pending: make(map[uint32]*entry),
		done:    make(chan struct{}),
	}
	go ch.recvLoop()
	if heartbeat > 0 {
		go ch.heartbeatLoop(heartbeat)
	}
	return ch
}

// nextID returns the next correlation ID not currently pending. 0 is never used.
// Must be called with mu held.
func (c *Channel) nextID() uint32 {
	for {
		c.seq++
		if c.seq == 0 {
			continue
		}
		if _, busy := c.pending[c.seq]; !busy {
			return c.seq
		}
	}
}

// Send writes a call envelope and returns its correlation ID. The handler is registered
// before the frame is written so a fast reply cannot be missed. A nil handler sends
// the call without a pending entry; any reply to it is dropped.
func (c *Channel) Send(method string, payload json.RawMessage, h Handler) (uint32, error) {
	c.mu.Lock()
	if c.stopped {
		err := c.err
		c.mu.Unlock()
		return 0, err
	}
	id := c.nextID()
	if h != nil {
		c.pending[id] = &entry{h: h}
	}
	c.mu.Unlock()

	body, err := c.codec.Encode(&message.Envelope{Method: method, Payload: payload})
	if err != nil {
		c.Forget(id)
		return 0, err
	}

	header := protocol.Header{
		CodecType: byte(c.codec.Type()),
		MsgType:   protocol.MsgTypeCall,
		Seq:       id,
	}

	c.sending.Lock()
	err = protocol.Encode(c.conn, &header, body)
	c.sending.Unlock()
	if err != nil {
		c.Forget(id)
		return 0, err
	}
	return id, nil
}

// Forget removes a pending entry without settling it. It reports whether the entry existed.
func (c *Channel) Forget(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

// Pending returns the number of calls awaiting a reply.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the channel has failed or been closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the channel stopped, or nil while it is running.
func (c *Channel) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close closes the underlying stream and fails every pending call with ErrClosed.
func (c *Channel) Close() error {
	c.fail(ErrClosed)
	return c.conn.Close()
}

// recvLoop is the only reader of the stream. Reads must be sequential to keep frame
// boundaries, so every reply is routed from here.
func (c *Channel) recvLoop() {
	for {
		header, body, err := protocol.Decode(c.conn)
		if err != nil {
			c.fail(err)
			return
		}
		if header.MsgType != protocol.MsgTypeReply {
			continue
		}

		reply := &message.Envelope{}
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, reply); err != nil {
			c.log.Warn("dropping undecodable reply", zap.Uint32("id", header.Seq), zap.Error(err))
			continue
		}
		reply.ID = header.Seq

		c.mu.Lock()
		e, ok := c.pending[reply.ID]
		c.mu.Unlock()
		if !ok {
			c.log.Debug("dropping reply without pending call", zap.Uint32("id", reply.ID), zap.String("tag", reply.Method))
			continue
		}

		if e.h(reply, nil) {
			c.mu.Lock()
			if c.pending[reply.ID] == e {
				delete(c.pending, reply.ID)
			}
			c.mu.Unlock()
		}
	}
}

// fail stops the channel once and notifies every pending call so none blocks forever.
func (c *Channel) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.stopped = true
		entries := c.pending
		c.pending = make(map[uint32]*entry)
		c.mu.Unlock()
		close(c.done)

		if len(entries) > 0 {
			c.log.Warn("channel stopped with calls in flight", zap.Int("pending", len(entries)), zap.Error(err))
		}
		for _, e := range entries {
			e.h(nil, err)
		}
	})
}

// heartbeatLoop writes keepalive frames until the channel stops.
func (c *Channel) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	header := &protocol.Header{
		CodecType: byte(c.codec.Type()),
		MsgType:   protocol.MsgTypeHeartbeat,
	}
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sending.Lock()
			err := protocol.Encode(c.conn, header, nil)
			c.sending.Unlock()
			if err != nil {
				return
			}
		}
	}
}
