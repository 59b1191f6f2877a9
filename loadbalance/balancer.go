// Package loadbalance picks the worker a controller connects to when a service has
// several announced instances.
//
// Three strategies are implemented:
//   - RoundRobin:      spread controllers evenly over equal workers
//   - WeightedRandom:  favour workers announced with a higher weight
//   - ConsistentHash:  pin a controller (by key) to the same worker across reconnects
package loadbalance

import (
	"errors"

	"worker-rpc/registry"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer selects one instance from the discovered list. Must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging).
	Name() string
}

// ByName returns the balancer for a strategy name; key is only used by "hash".
func ByName(name, key string) (Balancer, error) {
	switch name {
	case "", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted":
		return &WeightedRandomBalancer{}, nil
	case "hash":
		return NewConsistentHashBalancer(key), nil
	}
	return nil, errors.New("unknown balancer: " + name)
}
