// Package registry announces worker endpoints so controllers can find them.
package registry

// ServiceInstance describes one worker endpoint serving a service.
type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
	Methods []string `json:",omitempty"` // method registry announced by the worker, if known
}

type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}
