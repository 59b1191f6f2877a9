package bridge

import (
	"errors"

	"worker-rpc/transport"
)

var (
	// ErrNotReady is returned for calls made before introspection has completed.
	ErrNotReady = errors.New("bridge: worker methods not yet known")

	// ErrMethodNotFound is returned, without contacting the worker, for names
	// absent from the worker's method registry.
	ErrMethodNotFound = errors.New("bridge: method not found")

	// ErrIncompatible is returned when a worker lacks methods a client requires.
	ErrIncompatible = errors.New("bridge: worker is incompatible")

	// ErrClosed is returned for calls still pending when the proxy is closed.
	ErrClosed = transport.ErrClosed
)

// RemoteError is a failure raised by the worker-side method. Only the message
// crosses the channel.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
