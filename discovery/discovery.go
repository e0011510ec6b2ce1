// Package discovery turns a registered service name into a concrete
// network address for a channel.Channel to dial. It is a channel-external
// collaborator: channel only ever depends on the small Resolver interface
// it declares itself, never on this package, keeping address resolution
// pluggable without pulling service-method routing into the hard core.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"

	"qtrpc/qtconfig"
	"qtrpc/sockconn"
)

// Option configures an EtcdResolver at construction time.
type Option = qtconfig.Option[EtcdResolver]

// WithWatchBufferSize sets the buffer depth of channels returned by Watch;
// the default (1) only ever needs to hold the most recent address.
func WithWatchBufferSize(n int) Option {
	return func(r *EtcdResolver) { r.watchBuf = n }
}

// Address has the same fields as channel.Address, so a resolved address
// converts with channel.Address(a) and can then be passed to channel.Dial,
// without this package importing channel. It is a distinct named type, so
// the resolvers here do not satisfy channel.Resolver as they stand.
type Address struct {
	Host  string
	Port  int
	Proto sockconn.ConnType
}

// Instance is one running copy of a service as discovery sees it: just
// enough to dial it (Addr) and to weigh it against its peers (Weight). A
// Socket Channel never registers itself as an Instance — there is no
// server-side framing in this module — so discovery only ever needs to
// read instances back out of etcd, never write Register/Deregister calls.
type Instance struct {
	Addr   string
	Weight int
}

// EtcdResolver resolves a service name to one instance address, picked by
// a pluggable Balancer over the instance list etcd currently reports.
// Grounded on the teacher's registry.EtcdRegistry + loadbalance.Balancer
// collaboration inside client.Client.Call; here the etcd plumbing and the
// balancing strategy are both this package's own code operating on its own
// Instance/Address shapes; discovery only ever reads from etcd, so the
// Register/Deregister/KeepAlive half of the teacher's Registry interface
// has no counterpart here.
type EtcdResolver struct {
	client   *clientv3.Client
	bal      Balancer
	proto    sockconn.ConnType
	watchBuf int
}

// NewEtcdResolver connects to etcd at endpoints and resolves instances
// registered under serviceName using bal's selection strategy.
func NewEtcdResolver(endpoints []string, bal Balancer, proto sockconn.ConnType, opts ...Option) (*EtcdResolver, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("discovery: connect etcd: %w", err)
	}
	r := &EtcdResolver{client: c, bal: bal, proto: proto, watchBuf: 1}
	qtconfig.Apply(r, opts)
	return r, nil
}

// etcdKeyPrefix mirrors the teacher's /{service}/{addr} layout under a
// namespace scoped to this module so a shared etcd cluster never collides
// with an unrelated deployment's service tree.
func etcdKeyPrefix(serviceName string) string {
	return "/qtrpc-discovery/" + serviceName + "/"
}

// discover queries etcd directly for every instance currently registered
// under serviceName, the read half of the teacher's EtcdRegistry.Discover.
func (r *EtcdResolver) discover(ctx context.Context, serviceName string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, etcdKeyPrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Resolve discovers every instance registered for serviceName and returns
// the address of the one the balancer picks.
func (r *EtcdResolver) Resolve(serviceName string) (Address, error) {
	instances, err := r.discover(context.Background(), serviceName)
	if err != nil {
		return Address{}, fmt.Errorf("discovery: discover %q: %w", serviceName, err)
	}
	if len(instances) == 0 {
		return Address{}, fmt.Errorf("discovery: no instances registered for %q", serviceName)
	}
	inst, err := r.bal.Pick(instances)
	if err != nil {
		return Address{}, fmt.Errorf("discovery: pick instance for %q: %w", serviceName, err)
	}
	host, port, err := splitHostPort(inst.Addr)
	if err != nil {
		return Address{}, err
	}
	return Address{Host: host, Port: port, Proto: r.proto}, nil
}

// Watch streams re-resolved addresses for serviceName whenever etcd
// reports the instance set changed, letting a long-lived channel reconnect
// to a fresh address instead of sticking to a peer that's since scaled
// down. Uses etcd's server-push Watch API directly, re-fetching the full
// instance list on every event rather than reconciling individual deltas —
// simpler, and the instance lists involved are small.
func (r *EtcdResolver) Watch(ctx context.Context, serviceName string) <-chan Address {
	out := make(chan Address, r.watchBuf)
	watchChan := r.client.Watch(ctx, etcdKeyPrefix(serviceName), clientv3.WithPrefix())
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watchChan:
				if !ok {
					return
				}
				instances, err := r.discover(ctx, serviceName)
				if err != nil || len(instances) == 0 {
					continue
				}
				inst, err := r.bal.Pick(instances)
				if err != nil {
					continue
				}
				host, port, err := splitHostPort(inst.Addr)
				if err != nil {
					continue
				}
				select {
				case out <- Address{Host: host, Port: port, Proto: r.proto}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("discovery: malformed instance address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("discovery: malformed instance address %q: %w", addr, err)
	}
	return host, port, nil
}

// StaticResolver resolves every service name to the same fixed address,
// for tests and for deployments that don't use etcd-backed discovery.
type StaticResolver struct {
	Addr Address
}

func (s StaticResolver) Resolve(serviceName string) (Address, error) { return s.Addr, nil }
