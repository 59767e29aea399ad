package tp

import (
	"context"
	"errors"
	"sync"

	"github.com/openecu/j1939sock/internal/j1939"
)

var errNoSession = errors.New("no matching session")

// Session implements j1939.Session, the handle the outbound path
// attaches segments to across one or more Send calls.
type Session struct {
	eng      *Engine
	md       j1939.Metadata
	total    int
	extended bool
	endpoint *j1939.Endpoint

	mu       sync.Mutex
	done     int
	segments [][]byte
	closed   bool
}

// AttachSegment queues one segment at offset. Segments are transmitted
// asynchronously; once the session's recorded total has been fully
// queued across however many AttachSegment calls it took, the session
// "settles" (simulated transmission) and calls back NotifyAck or
// NotifyAbort on the owning endpoint.
func (s *Session) AttachSegment(ctx context.Context, offset int, payload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("tp: session already closed")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.segments = append(s.segments, cp)
	s.done += len(payload)
	complete := s.done >= s.total
	if complete {
		s.closed = true
	}
	segments := s.segments
	s.mu.Unlock()

	if !complete {
		return nil
	}

	go s.settle(context.Background(), segments)
	return nil
}

func (s *Session) settle(ctx context.Context, segments [][]byte) {
	defer s.eng.releaseSession(s)

	packets := len(segments)
	err := s.runSettled(ctx, segments)
	if s.endpoint == nil {
		return
	}
	if err != nil {
		s.endpoint.NotifyAbort(s.total, packets, err)
		return
	}
	s.endpoint.NotifyAck(s.total, packets)
}
