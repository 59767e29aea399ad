package j1939

import "context"

// Release blocks uninterruptibly-but-signal-aware until the
// pending-segment counter reaches zero, then detaches, releases the
// local-ECU claim, and drops the interface instance reference.
//
// A cancelled ctx returns ErrInterrupted early instead of waiting out the
// drain: the endpoint is still freed, and the pending counter becomes
// the transport engine's sole responsibility from that point on.
//
// If the bound interface's Instance is marked gone (internal/netdev.Watch
// observed the device disappear) while this call is waiting, the drain
// is abandoned immediately instead of blocking forever on frames a
// torn-down device will never acknowledge; the endpoint is still fully
// torn down, and Release returns ErrInterfaceGone.
func (e *Endpoint) Release(ctx context.Context, ecu LocalECURegistry) error {
	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		for e.pending != 0 && !(e.instance != nil && e.instance.IsGone()) {
			e.drain.Wait()
		}
		e.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.finishRelease(ecu)
		return ErrInterrupted
	}

	e.mu.Lock()
	gone := e.instance != nil && e.instance.IsGone()
	e.mu.Unlock()
	e.finishRelease(ecu)
	if gone {
		return ErrInterfaceGone
	}
	return nil
}

func (e *Endpoint) finishRelease(ecu LocalECURegistry) {
	e.mu.Lock()
	bound := e.flags&flagBound != 0
	ifindex := e.ifindex
	name := e.claimedName
	addr := e.claimedAddr
	instance := e.instance
	e.flags = 0
	e.mu.Unlock()

	if !bound {
		return
	}

	if reg, ok := lookupRegistry(ifindex); ok {
		reg.detach(e)
	}
	if ecu != nil {
		ecu.Release(ifindex, name, addr)
	}
	if instance != nil {
		instance.Release()
	}
}
