package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"worker-rpc/registry"
)

// ConsistentHashBalancer maps a fixed key (typically the controller's ID) onto a hash ring of
// worker instances, so the same controller lands on the same worker while the set is stable,
// and only a fraction of controllers move when a worker joins or leaves.
//
// Each instance gets replicas virtual nodes, hashed from "{addr}#{i}", to even out the ring.
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu        sync.Mutex
	signature string                              // sorted instance addresses the ring was built from
	ring      []uint32                            // sorted hash values
	nodes     map[uint32]registry.ServiceInstance // hash value → instance
}

// NewConsistentHashBalancer creates a balancer routing key with 100 virtual nodes per instance.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: 100,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

// Pick rebuilds the ring if the instance set changed, then routes the balancer's key.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signatureOf(instances); sig != b.signature {
		b.rebuild(instances)
		b.signature = sig
	}

	inst := b.lookup(b.key)
	return &inst, nil
}

// PickKey routes an arbitrary key on the ring built by the last Pick.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.ServiceInstance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}
	inst := b.lookup(key)
	return &inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func (b *ConsistentHashBalancer) rebuild(instances []registry.ServiceInstance) {
	b.ring = b.ring[:0]
	clear(b.nodes)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = inst
		}
	}
	slices.Sort(b.ring)
}

// lookup finds the first node clockwise from the key's hash, wrapping to the start.
func (b *ConsistentHashBalancer) lookup(key string) registry.ServiceInstance {
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]]
}

func signatureOf(instances []registry.ServiceInstance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)
	return strings.Join(addrs, ",")
}
