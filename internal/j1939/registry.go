package j1939

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry is the per-interface endpoint list: fan-out dispatch of
// inbound frames, and the attach/detach bookkeeping lifecycle binds and
// releases drive. One Registry exists per interface index for as long as
// at least one endpoint is bound to it, one shared bus instance per
// interface keyed by ifindex.
type Registry struct {
	mu        sync.Mutex
	ifindex   int
	endpoints []*Endpoint
	instance  *Instance

	resolver DeviceResolver
	ecu      LocalECURegistry
	log      *logrus.Entry
}

var (
	registriesMu sync.RWMutex
	registries   = map[int]*Registry{}
)

// manager bundles the collaborators every Registry needs; the daemon
// constructs one and passes it to Bind.
type manager struct {
	resolver DeviceResolver
	ecu      LocalECURegistry
	log      *logrus.Entry
}

// getOrCreateRegistry returns the Registry for ifindex, creating it (and
// resolving/acquiring the underlying device) on first reference.
func getOrCreateRegistry(ctx context.Context, m manager, ifindex int) (*Registry, error) {
	registriesMu.RLock()
	r, ok := registries[ifindex]
	registriesMu.RUnlock()
	if ok {
		return r, nil
	}

	registriesMu.Lock()
	defer registriesMu.Unlock()
	if r, ok := registries[ifindex]; ok {
		return r, nil
	}

	dev, err := m.resolver.Resolve(ctx, ifindex)
	if err != nil {
		return nil, err
	}
	if !dev.IsJ1939Capable() {
		return nil, ErrNoInterface
	}

	log := m.log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r = &Registry{
		ifindex:  ifindex,
		resolver: m.resolver,
		ecu:      m.ecu,
		log:      log.WithField("ifindex", ifindex),
	}
	r.instance = NewInstance(dev, func() {
		registriesMu.Lock()
		delete(registries, ifindex)
		registriesMu.Unlock()
	}, r.log)
	registries[ifindex] = r
	return r, nil
}

func lookupRegistry(ifindex int) (*Registry, bool) {
	registriesMu.RLock()
	defer registriesMu.RUnlock()
	r, ok := registries[ifindex]
	return r, ok
}

// RegistryFor returns the live Registry for ifindex, if one has been
// created by a prior Bind. Exported for daemon glue (the candev frame
// router's delivery sink, the monitor snapshot source).
func RegistryFor(ifindex int) (*Registry, bool) {
	return lookupRegistry(ifindex)
}

// Ifindex reports the interface index this registry serves.
func (r *Registry) Ifindex() int { return r.ifindex }

// attach appends e to the registry's endpoint list. It takes only the
// registry lock; Bind calls it after releasing e's endpoint mutex.
func (r *Registry) attach(e *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, e)
}

// detach removes e from the registry's endpoint list.
func (r *Registry) detach(e *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.endpoints {
		if c == e {
			r.endpoints = append(r.endpoints[:i], r.endpoints[i+1:]...)
			return
		}
	}
}

// Deliver fans md+payload out to every endpoint in the registry whose
// match predicates accept it, invoking per-endpoint delivery for each
// match. origin, if non-nil, is the endpoint that produced this frame
// locally (for DontRoute/Confirm stamping and the loopback check).
func (r *Registry) Deliver(md Metadata, payload []byte, origin *Endpoint) {
	r.mu.Lock()
	targets := make([]*Endpoint, len(r.endpoints))
	copy(targets, r.endpoints)
	r.mu.Unlock()

	for _, e := range targets {
		deliverOne(e, md, payload, origin)
	}
}

// Snapshot reports the registry's bound endpoint count and shared
// instance refcount, for internal/monitor.
func (r *Registry) Snapshot() (endpointCount int, instanceRefs int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints), r.instance.RefCount()
}

// MarkGone flags the registry's shared Instance as gone and wakes every
// bound endpoint currently blocked draining in Release, so a daemon can
// drive the device-gone transition after observing internal/netdev.Watch
// report an EventGone for this interface.
func (r *Registry) MarkGone() {
	r.mu.Lock()
	r.instance.MarkGone()
	targets := make([]*Endpoint, len(r.endpoints))
	copy(targets, r.endpoints)
	r.mu.Unlock()

	for _, e := range targets {
		e.mu.Lock()
		e.drain.Broadcast()
		e.mu.Unlock()
	}
}
