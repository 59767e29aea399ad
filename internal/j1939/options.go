package j1939

import "fmt"

// Option names the recognized options.
type Option int

const (
	OptFilter Option = iota
	OptPromisc
	OptRecvOwn
	OptErrQueue
	OptSendPrio
)

// privileged reports whether the caller may request a priority below 2.
// A daemon embedding this package supplies its own privilege check through
// SetPrivilegeCheck; this default denies every below-2 request, the
// conservative choice absent a capability model.
var privileged = func() bool { return false }

// SetPrivilegeCheck overrides the privilege predicate consulted by
// SetSendPrio for priorities below 2. Intended to be called once
// at daemon startup.
func SetPrivilegeCheck(f func() bool) {
	privileged = f
}

// SetFilter replaces the endpoint's user filter list atomically, so
// readers never need to take a lock to walk it.
func (e *Endpoint) SetFilter(entries []Filter) error {
	if len(entries) > FilterMax {
		return fmt.Errorf("setopt filter: %w", ErrFilterTooLarge)
	}
	e.filters.Store(newFilterList(entries))
	return nil
}

// Filters returns a copy of the currently installed filter list.
func (e *Endpoint) Filters() []Filter {
	fl := e.filters.Load()
	out := make([]Filter, len(fl.entries))
	copy(out, fl.entries)
	return out
}

// SetPromisc toggles the PROMISC flag.
func (e *Endpoint) SetPromisc(on bool) { e.setFlag(flagPromisc, on) }

// Promisc reports the PROMISC flag.
func (e *Endpoint) Promisc() bool { return e.hasFlag(flagPromisc) }

// SetRecvOwn toggles the RECV_OWN flag.
func (e *Endpoint) SetRecvOwn(on bool) { e.setFlag(flagRecvOwn, on) }

// RecvOwn reports the RECV_OWN flag.
func (e *Endpoint) RecvOwn() bool { return e.hasFlag(flagRecvOwn) }

// SetBroadcastPermitted toggles the broadcast-permitted flag delegated
// from the generic datagram layer.
func (e *Endpoint) SetBroadcastPermitted(on bool) { e.setFlag(flagBroadcastOK, on) }

// BroadcastPermitted reports the broadcast-permitted flag.
func (e *Endpoint) BroadcastPermitted() bool { return e.hasFlag(flagBroadcastOK) }

// SetErrQueue toggles the ERRQUEUE flag; turning it off purges any
// pending notifications.
func (e *Endpoint) SetErrQueue(on bool) {
	e.setFlag(flagErrQueue, on)
	if !on {
		for {
			select {
			case <-e.errq:
			default:
				return
			}
		}
	}
}

// ErrQueue reports the ERRQUEUE flag.
func (e *Endpoint) ErrQueue() bool { return e.hasFlag(flagErrQueue) }

// SetSendPrio stores the send priority, enforcing the privilege and
// range checks.
func (e *Endpoint) SetSendPrio(prio uint8) error {
	if prio > 7 {
		return fmt.Errorf("setopt send_prio: %w", ErrOutOfDomain)
	}
	if prio < 2 && !privileged() {
		return fmt.Errorf("setopt send_prio: %w", ErrPermission)
	}
	e.mu.Lock()
	e.prio = prio
	e.mu.Unlock()
	return nil
}

// SendPrio returns the current send priority.
func (e *Endpoint) SendPrio() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prio
}
