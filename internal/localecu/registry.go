// Package localecu implements the per-interface local-ECU claim registry
// used as an external collaborator of the bind/release lifecycle: it
// tracks which (NAME, address) pairs are currently claimed on behalf of
// bound endpoints, refcounted so more than one endpoint may share a claim
// and the claim is only actually released when the last holder drops it.
package localecu

import "fmt"

// Store is the persistence backend a Registry delegates to. memStore is
// the default (process-lifetime only); boltStore additionally survives a
// daemon restart.
type Store interface {
	incr(key claimKey) (count int, err error)
	decr(key claimKey) (count int, err error)
}

type claimKey struct {
	ifindex int
	name    uint64
	addr    uint8
}

func (k claimKey) String() string {
	return fmt.Sprintf("%d/%#x/%#02x", k.ifindex, k.name, k.addr)
}

// Registry is the j1939.LocalECURegistry implementation this package
// exposes.
type Registry struct {
	store Store
}

// NewRegistry builds a Registry backed by an in-process map, refcounted
// per (ifindex, name, addr).
func NewRegistry() *Registry {
	return &Registry{store: newMemStore()}
}

// NewDurableRegistry builds a Registry backed by a bbolt database at
// path, so claims survive a daemon restart.
func NewDurableRegistry(path string) (*Registry, error) {
	s, err := newBoltStore(path)
	if err != nil {
		return nil, err
	}
	return &Registry{store: s}, nil
}

// Claim implements j1939.LocalECURegistry: increments the refcount for
// (ifindex, name, addr), always succeeding for the in-memory store
// (multiple bound endpoints may legitimately share one local address);
// the durable store additionally records the claim across restarts.
func (r *Registry) Claim(ifindex int, name uint64, addr uint8) error {
	_, err := r.store.incr(claimKey{ifindex: ifindex, name: name, addr: addr})
	return err
}

// Release implements j1939.LocalECURegistry: decrements the refcount,
// removing the claim entirely once it reaches zero.
func (r *Registry) Release(ifindex int, name uint64, addr uint8) {
	_, _ = r.store.decr(claimKey{ifindex: ifindex, name: name, addr: addr})
}
