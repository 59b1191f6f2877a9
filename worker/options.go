package worker

import "go.uber.org/zap"

type options struct {
	logger       *zap.Logger
	faultHandler func(*Fault)
	concurrent   bool
	serviceName  string
	weight       int
	version      string
	leaseTTL     int64
}

// Option configures an Endpoint.
type Option func(*options)

// WithLogger sets the endpoint logger. Defaults to the package Logger().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFaultHandler receives every method failure after its error reply has been written.
// The default handler logs the fault at error level.
func WithFaultHandler(h func(*Fault)) Option {
	return func(o *options) { o.faultHandler = h }
}

// WithConcurrentDispatch runs each call on its own goroutine instead of one at a time in
// arrival order. The service must then be safe for concurrent use.
func WithConcurrentDispatch() Option {
	return func(o *options) { o.concurrent = true }
}

// WithServiceName overrides the name announced to a registry (default: the receiver's type name).
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithWeight sets the load-balancing weight announced to a registry.
func WithWeight(w int) Option {
	return func(o *options) { o.weight = w }
}

// WithVersion sets the version string announced to a registry.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithLeaseTTL sets the registry lease TTL in seconds (default 10).
func WithLeaseTTL(seconds int64) Option {
	return func(o *options) { o.leaseTTL = seconds }
}
