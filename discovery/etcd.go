// etcd-backed Registry.
//
// Keys look like /hostbridge/{bridge}/{addr} with a JSON-encoded Instance
// as the value. Registration attaches a TTL lease kept alive in the
// background; when the host dies, the lease expires and etcd removes the
// entry.
package discovery

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/hostbridge/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // Thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register stores the instance under a TTL lease and starts KeepAlive to
// renew it. The lease ID stays local to this call so multiple hosts can
// safely share one EtcdRegistry.
func (r *EtcdRegistry) Register(bridge string, instance Instance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+bridge+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain KeepAlive responses so the channel never fills up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes the instance entry. Called during graceful shutdown,
// before the listener closes.
func (r *EtcdRegistry) Deregister(bridge string, addr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+bridge+"/"+addr)
	return err
}

// Discover lists the currently registered instances for a bridge.
func (r *EtcdRegistry) Discover(bridge string) ([]Instance, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+bridge+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0)
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // Skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits the refreshed instance list whenever anything under the
// bridge prefix changes (registration, deregistration, lease expiry).
func (r *EtcdRegistry) Watch(bridge string) <-chan []Instance {
	ctx := context.TODO()
	ch := make(chan []Instance, 1)
	prefix := keyPrefix + bridge + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change — simpler than folding
			// individual watch events.
			instances, _ := r.Discover(bridge)
			ch <- instances
		}
	}()

	return ch
}
