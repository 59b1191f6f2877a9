package bridge

import (
	"time"

	"go.uber.org/zap"

	"worker-rpc/codec"
)

type options struct {
	codec             codec.CodecType
	heartbeat         time.Duration
	callTimeout       time.Duration
	introspectTimeout time.Duration
	logger            *zap.Logger
	require           []string
}

func defaultOptions() options {
	return options{
		codec:             codec.CodecTypeJSON,
		heartbeat:         30 * time.Second,
		introspectTimeout: 10 * time.Second,
	}
}

// Option configures a Proxy.
type Option func(*options)

// WithCodec selects the envelope body codec. Defaults to JSON.
func WithCodec(t codec.CodecType) Option {
	return func(o *options) { o.codec = t }
}

// WithHeartbeat sets the keepalive interval; zero disables heartbeats. Defaults to 30s.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithCallTimeout bounds every call, in addition to the caller's context. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithIntrospectionTimeout bounds the getAllMethods round-trip. Defaults to 10s.
func WithIntrospectionTimeout(d time.Duration) Option {
	return func(o *options) { o.introspectTimeout = d }
}

// WithLogger sets the proxy logger. Defaults to the package Logger().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRequire makes introspection fail unless the worker exposes every named method.
func WithRequire(methods ...string) Option {
	return func(o *options) { o.require = append(o.require, methods...) }
}
