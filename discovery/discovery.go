// Package discovery lets UI-side clients find out-of-process bridge hosts.
//
// A host registers its transport endpoint under its bridge name; clients
// discover the live instances and pick one to dial. Registration is
// lease-based, so a crashed host disappears on its own instead of leaving a
// ghost entry behind.
package discovery

import (
	"fmt"
	"math/rand"
	"sync/atomic"
)

// Instance is one registered host process serving a bridge.
type Instance struct {
	Addr    string
	Version string
}

// Registry is the discovery store. The etcd implementation is the real
// one; tests use in-memory fakes.
type Registry interface {
	Register(bridge string, instance Instance, ttl int64) error
	Deregister(bridge string, addr string) error
	Discover(bridge string) ([]Instance, error)
	Watch(bridge string) <-chan []Instance
}

// Picker selects which discovered instance to dial.
// Called per dial — must be goroutine-safe.
type Picker interface {
	Pick(instances []Instance) (*Instance, error)
	Name() string
}

// RoundRobin cycles through instances with a lock-free atomic counter.
type RoundRobin struct {
	counter atomic.Int64
}

func (p *RoundRobin) Pick(instances []Instance) (*Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	index := p.counter.Add(1) % int64(len(instances))
	return &instances[index], nil
}

func (p *RoundRobin) Name() string { return "RoundRobin" }

// Random picks a uniformly random instance.
type Random struct{}

func (Random) Pick(instances []Instance) (*Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	return &instances[rand.Intn(len(instances))], nil
}

func (Random) Name() string { return "Random" }

// PreferVersion narrows the candidates to instances registered with the
// wanted version and delegates the choice to Next (round-robin when nil).
// When no instance matches, the full set is used instead, so a rolling
// host upgrade degrades to "any version" rather than failing the dial.
type PreferVersion struct {
	Version string
	Next    Picker

	fallback RoundRobin // Used when Next is nil; stateful so rotation survives across picks
}

func (p *PreferVersion) Pick(instances []Instance) (*Instance, error) {
	matched := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Version == p.Version {
			matched = append(matched, inst)
		}
	}
	if len(matched) == 0 {
		matched = instances
	}
	next := p.Next
	if next == nil {
		next = &p.fallback
	}
	return next.Pick(matched)
}

func (p *PreferVersion) Name() string { return "PreferVersion" }
