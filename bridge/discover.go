package bridge

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"worker-rpc/loadbalance"
	"worker-rpc/registry"
)

// DialService finds a worker announced under service, dials it over TCP and connects.
//
// Instances that announced a method registry lacking a WithRequire method are skipped
// before dialing; instances that announced none are judged after introspection.
func DialService(ctx context.Context, reg registry.Registry, bal loadbalance.Balancer, service string, opts ...Option) (*Proxy, error) {
	instances, err := reg.Discover(service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", loadbalance.ErrNoInstances, service)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	candidates := instances[:0:0]
	for _, inst := range instances {
		if announces(inst, o.require) {
			candidates = append(candidates, inst)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no instance of %s exposes %v", ErrIncompatible, service, o.require)
	}

	inst, err := bal.Pick(candidates)
	if err != nil {
		return nil, err
	}
	log.Debug("dialing worker", zap.String("service", service), zap.String("addr", inst.Addr), zap.String("balancer", bal.Name()))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", inst.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", inst.Addr, err)
	}
	return Connect(ctx, conn, opts...)
}

func announces(inst registry.ServiceInstance, required []string) bool {
	if len(inst.Methods) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(inst.Methods))
	for _, m := range inst.Methods {
		have[m] = struct{}{}
	}
	for _, m := range required {
		if _, ok := have[m]; !ok {
			return false
		}
	}
	return true
}
