package j1939

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Instance is the per-interface J1939 stack instance shared by every
// BOUND endpoint on that interface, per the "shared ownership of
// the interface instance" design note. It is reference-counted: Acquire
// only increments the count, and the Release that drops the count to zero
// runs onStop.
type Instance struct {
	Ifindex int
	Device  Device

	refs int32
	gone atomic.Bool

	stopOnce sync.Once
	onStop   func()

	log *logrus.Entry
}

// NewInstance constructs an instance bound to dev, with onStop invoked
// exactly once when the last reference is released (the Registry passes a
// function that removes its entry from the package-level registries map).
func NewInstance(dev Device, onStop func(), log *logrus.Entry) *Instance {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Instance{
		Ifindex: dev.Ifindex(),
		Device:  dev,
		onStop:  onStop,
		log:     log,
	}
}

// Acquire increments the reference count. Call once per endpoint that
// begins depending on the instance (first successful bind).
func (in *Instance) Acquire() {
	atomic.AddInt32(&in.refs, 1)
}

// Release decrements the reference count, running onStop exactly once
// when it reaches zero.
func (in *Instance) Release() {
	if atomic.AddInt32(&in.refs, -1) == 0 {
		in.stopOnce.Do(func() {
			in.log.WithField("ifindex", in.Ifindex).Debug("stopping interface instance, no bound endpoints remain")
			if in.onStop != nil {
				in.onStop()
			}
		})
	}
}

// RefCount reports the current reference count, exported for tests and
// the monitor snapshot.
func (in *Instance) RefCount() int32 {
	return atomic.LoadInt32(&in.refs)
}

// MarkGone flags the instance as permanently unusable once its
// underlying device has disappeared (internal/netdev.Watch observing an
// EventGone). It only sets the flag; Registry.MarkGone calls it and then
// wakes the endpoints blocked in Release, which short-circuit instead of
// draining forever.
func (in *Instance) MarkGone() {
	in.gone.Store(true)
}

// IsGone reports whether MarkGone has been called.
func (in *Instance) IsGone() bool {
	return in.gone.Load()
}
