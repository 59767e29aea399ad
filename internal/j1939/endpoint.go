package j1939

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// endpointFlags mirrors the independent state bits.
type endpointFlags uint8

const (
	flagBound endpointFlags = 1 << iota
	flagConnected
	flagPromisc
	flagRecvOwn
	flagErrQueue
	flagBroadcastOK
)

// segProgress tracks the in-flight multi-frame datagram's segmentation
// progress.
type segProgress struct {
	expectedTotal int
	done          int
}

// Endpoint is the per-socket state container. It is created by Open and
// reaches every other state transition (Bind, Connect, the option
// surface, Send/Recv, Release) through its exported methods; no field is
// safe to read or write without going through Endpoint.mu except where
// noted (filters, pending, lastErr use lock-free primitives deliberately,
// to let the filter list be swapped without reader locks).
type Endpoint struct {
	mu sync.Mutex

	ifindex int
	local   LocalAddr
	peer    PeerAddr
	rxPGN   uint32
	flags   endpointFlags
	prio    uint8
	seg     segProgress

	// filters is swapped wholesale on SetFilter; readers (the registry
	// fan-out walk) never take mu to read it.
	filters atomic.Pointer[filterList]

	// pending counts outbound frames owned by the transport engine but
	// not yet freed; drain is signaled whenever it returns to zero.
	pending int32
	drain   *sync.Cond

	// segFrames counts frames handed to the transport engine for the
	// current in-flight multi-packet session; released back to pending
	// in one step when the engine reports ACK or ABORT for that
	// session, since this layer does not track individual per-frame
	// acknowledgement.
	segFrames int32

	// lastErr is the async-error slot, set by NotifyAbort and consumed
	// once by the next Send/Recv.
	lastErr atomic.Pointer[error]

	// rx is the per-endpoint receive queue fed by the inbound path.
	rx *rxQueue

	// errq carries error-queue notifications to endpoints that opted in
	// via ERRQUEUE.
	errq chan ErrQueueEntry

	// instance is the refcounted per-interface J1939 instance acquired
	// on first successful bind and released by Release.
	instance *Instance

	// claimed records the (name, addr) pair currently held in the
	// local-ECU registry on this endpoint's behalf, so Release and
	// rebind know what to give back.
	claimed     bool
	claimedName uint64
	claimedAddr uint8

	log *logrus.Entry
}

// Open allocates a fresh, unbound endpoint, the Go analogue of the
// kernel's socket-create callback.
func Open(log *logrus.Entry) *Endpoint {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Endpoint{
		local: LocalAddr{Name: NoName, Addr: NoAddr},
		peer:  PeerAddr{Name: NoName, Addr: NoAddr, PGN: NoPGN},
		rxPGN: NoPGN,
		prio:  6,
		rx:    newRxQueue(256),
		errq:  make(chan ErrQueueEntry, 64),
		log:   log,
	}
	e.drain = sync.NewCond(&e.mu)
	e.filters.Store(newFilterList(nil))
	return e
}

func (e *Endpoint) hasFlag(f endpointFlags) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags&f != 0
}

func (e *Endpoint) setFlag(f endpointFlags, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if on {
		e.flags |= f
	} else {
		e.flags &^= f
	}
}

func (e *Endpoint) localAddr() LocalAddr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

func (e *Endpoint) peerAddr() PeerAddr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer
}

func (e *Endpoint) rxFilterPGN() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rxPGN
}

// Ifindex returns the bound interface index, or 0 if unbound.
func (e *Endpoint) Ifindex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ifindex
}

// IsBound reports whether the endpoint has completed a bind.
func (e *Endpoint) IsBound() bool { return e.hasFlag(flagBound) }

// IsConnected reports whether the endpoint has completed a connect.
func (e *Endpoint) IsConnected() bool { return e.hasFlag(flagConnected) }

// takeLastErr consumes and clears the async-error slot, returning nil if
// none is pending.
func (e *Endpoint) takeLastErr() error {
	p := e.lastErr.Swap(nil)
	if p == nil {
		return nil
	}
	return *p
}

// setLastErr stores err for one-time consumption by the next Send/Recv.
func (e *Endpoint) setLastErr(err error) {
	e.lastErr.Store(&err)
}

// addPending adjusts the pending-segment counter by delta and wakes the
// drain waiter if it reaches zero.
func (e *Endpoint) addPending(delta int32) {
	n := atomic.AddInt32(&e.pending, delta)
	if n < 0 {
		panic("j1939: pending segment counter went negative")
	}
	if n == 0 {
		e.mu.Lock()
		e.drain.Broadcast()
		e.mu.Unlock()
	}
}

// Pending returns the current pending-segment counter, exported for tests
// and the monitor snapshot.
func (e *Endpoint) Pending() int32 {
	return atomic.LoadInt32(&e.pending)
}

// releaseSegFrames frees every frame currently attributed to the
// in-flight session in one step, invoked by the error-queue producer at
// the ACK or ABORT lifecycle point.
func (e *Endpoint) releaseSegFrames() {
	n := atomic.SwapInt32(&e.segFrames, 0)
	if n > 0 {
		e.addPending(-n)
	}
}
