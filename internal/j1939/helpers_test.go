package j1939

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// nextIfindex hands out a fresh interface index per call so tests never
// share a Registry through the package-level registries map.
var testIfindexCounter int32

func nextIfindex() int {
	return int(atomic.AddInt32(&testIfindexCounter, 1)) + 1000
}

// must panics on a non-nil error, used in tests that set up fixture state
// where the call is not itself under test.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func noopCtx() context.Context { return context.Background() }

// fakeDevice is a minimal Device for bind tests.
type fakeDevice struct {
	ifindex int
	capable bool
}

func (d fakeDevice) Ifindex() int          { return d.ifindex }
func (d fakeDevice) IsJ1939Capable() bool  { return d.capable }

// fakeResolver hands back a fixed fakeDevice per ifindex, or ErrNoInterface
// if none is registered.
type fakeResolver struct {
	mu      sync.Mutex
	devices map[int]fakeDevice
}

func newFakeResolver(ifindexes ...int) *fakeResolver {
	r := &fakeResolver{devices: map[int]fakeDevice{}}
	for _, ix := range ifindexes {
		r.devices[ix] = fakeDevice{ifindex: ix, capable: true}
	}
	return r
}

func (r *fakeResolver) Resolve(ctx context.Context, ifindex int) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[ifindex]
	if !ok {
		return nil, ErrNoInterface
	}
	return d, nil
}

// fakeECU is an in-memory LocalECURegistry with no refcount enforcement,
// good enough for exercising Bind/Release call sequencing.
type fakeECU struct {
	mu     sync.Mutex
	claims map[string]int
}

func newFakeECU() *fakeECU {
	return &fakeECU{claims: map[string]int{}}
}

func (ecu *fakeECU) key(ifindex int, name uint64, addr uint8) string {
	return fmt.Sprintf("%d/%d/%d", ifindex, name, addr)
}

func (ecu *fakeECU) Claim(ifindex int, name uint64, addr uint8) error {
	ecu.mu.Lock()
	defer ecu.mu.Unlock()
	ecu.claims[ecu.key(ifindex, name, addr)]++
	return nil
}

func (ecu *fakeECU) Release(ifindex int, name uint64, addr uint8) {
	ecu.mu.Lock()
	defer ecu.mu.Unlock()
	k := ecu.key(ifindex, name, addr)
	if ecu.claims[k] > 0 {
		ecu.claims[k]--
	}
}

// fakeCollaborators returns a Collaborators backed by a single always-
// capable device on a freshly allocated ifindex, for tests that don't
// care about resolver failure paths. Each call gets its own interface
// index so tests never share a Registry.
func fakeCollaborators() (Collaborators, int) {
	ix := nextIfindex()
	return Collaborators{Resolver: newFakeResolver(ix), ECU: newFakeECU()}, ix
}

// fakeSession records every segment handed to it via AttachSegment.
// failAfter, if non-zero, makes the (failAfter+1)th call fail with failErr
// (ErrIO by default) instead of recording the segment, modeling a
// transport that stalls partway through a datagram.
type fakeSession struct {
	mu        sync.Mutex
	segments  [][]byte
	failNext  bool
	failErr   error
	failAfter int
}

func (s *fakeSession) AttachSegment(ctx context.Context, offset int, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fail := s.failNext
	if s.failAfter > 0 {
		if len(s.segments) >= s.failAfter {
			fail = true
		}
	}
	if fail {
		if s.failErr != nil {
			return s.failErr
		}
		return ErrIO
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.segments = append(s.segments, cp)
	return nil
}

// fakeTransport is a Transport whose SendSingle records calls and whose
// session methods hand back one fakeSession per call (no real keying),
// enough to exercise Endpoint.Send's state machine.
type fakeTransport struct {
	mu          sync.Mutex
	singles     []Metadata
	failSingle  bool
	failSession bool
	lastSession *fakeSession

	// nextFailAfter/nextFailErr, if set, seed every new session created
	// by SendNewSession so a test can make a not-yet-existing session
	// stall partway through.
	nextFailAfter int
	nextFailErr   error
}

func (tr *fakeTransport) SendSingle(ctx context.Context, md Metadata, payload []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.failSingle {
		return ErrIO
	}
	tr.singles = append(tr.singles, md)
	return nil
}

func (tr *fakeTransport) SendNewSession(ctx context.Context, md Metadata, total int) (Session, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.failSession {
		return nil, ErrTPBusy
	}
	s := &fakeSession{failAfter: tr.nextFailAfter, failErr: tr.nextFailErr}
	tr.lastSession = s
	return s, nil
}

func (tr *fakeTransport) SessionByMetadata(ctx context.Context, md Metadata, extended bool) (Session, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.lastSession == nil {
		return nil, fmt.Errorf("no session in flight")
	}
	return tr.lastSession, nil
}
