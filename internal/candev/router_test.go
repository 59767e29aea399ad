package candev

import (
	"testing"

	"github.com/openecu/j1939sock/internal/j1939"
)

type fakeDeliverer struct {
	calls []j1939.Metadata
}

func (f *fakeDeliverer) Deliver(md j1939.Metadata, payload []byte, origin *j1939.Endpoint) {
	f.calls = append(f.calls, md)
}

func TestFrameRouterRoute(t *testing.T) {
	sink := &fakeDeliverer{}
	r := NewFrameRouter(7, sink)
	id := EncodeID(0x00FECA, 3, 0x05, j1939.BroadcastAddr)
	r.Route(Frame{ID: id, Data: []byte{1, 2, 3}})

	if len(sink.calls) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sink.calls))
	}
	md := sink.calls[0]
	if md.Ifindex != 7 {
		t.Errorf("Ifindex = %d, want 7", md.Ifindex)
	}
	if md.PGN != 0x00FECA {
		t.Errorf("PGN = %#x, want %#x", md.PGN, 0x00FECA)
	}
	if md.SrcAddr != 0x05 {
		t.Errorf("SrcAddr = %#x, want %#x", md.SrcAddr, 0x05)
	}
}

func TestFrameRouterRunDrainsUntilClosed(t *testing.T) {
	sink := &fakeDeliverer{}
	r := NewFrameRouter(1, sink)
	recv := make(chan Frame, 2)
	recv <- Frame{ID: EncodeID(0x00EA00, 6, 0x10, 0x20)}
	recv <- Frame{ID: EncodeID(0x00EA00, 6, 0x11, 0x20)}
	close(recv)

	r.Run(recv)

	if len(sink.calls) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(sink.calls))
	}
}
