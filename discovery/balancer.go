package discovery

import (
	"fmt"
	"hash/crc32"
	"math/rand"
	"sort"
	"sync/atomic"
)

// Balancer picks one instance out of the set an EtcdResolver just
// discovered. Pick is called on every Resolve/Watch tick and must be
// goroutine-safe; a Channel may share one EtcdResolver across goroutines.
type Balancer interface {
	Pick(instances []Instance) (*Instance, error)
	Name() string
}

// RoundRobinBalancer distributes requests evenly across all instances in
// order, using an atomic counter for lock-free, goroutine-safe cycling.
// Best for stateless services where every instance has similar capacity.
type RoundRobinBalancer struct {
	counter int64
}

func (b *RoundRobinBalancer) Pick(instances []Instance) (*Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("discovery: no instances available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string { return "RoundRobin" }

// WeightedRandomBalancer selects instances probabilistically based on
// their weight: an instance with weight 10 gets roughly twice the traffic
// of one with weight 5. Best for heterogeneous instances.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []Instance) (*Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("discovery: no instances available")
	}
	totalWeight := 0
	for _, inst := range instances {
		totalWeight += inst.Weight
	}
	if totalWeight <= 0 {
		return &instances[rand.Intn(len(instances))], nil
	}
	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= instances[i].Weight
		if r < 0 {
			return &instances[i], nil
		}
	}
	return nil, fmt.Errorf("discovery: weighted random selection found no instance")
}

func (b *WeightedRandomBalancer) Name() string { return "WeightedRandom" }

// ConsistentHashBalancer maps keys to instances using a hash ring, so the
// same key always lands on the same instance until the ring changes —
// cache affinity for stateful backends. Each real instance occupies 100
// virtual nodes on the ring so three instances don't cluster together and
// starve one of traffic.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]*Instance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*Instance),
	}
}

// Add places an instance onto the hash ring under its 100 virtual nodes.
func (b *ConsistentHashBalancer) Add(instance *Instance) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", instance.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// PickByKey finds the instance responsible for key: hash it, then find the
// first ring node at or past that hash, wrapping around to the first node
// if the hash is past every node. This is key-based rather than
// instance-set-based, so it does not implement Balancer directly — a
// caller that wants cache affinity calls PickByKey instead of Resolve's
// generic Pick path.
func (b *ConsistentHashBalancer) PickByKey(key string) (*Instance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("discovery: consistent hash ring is empty")
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string { return "ConsistentHash" }
