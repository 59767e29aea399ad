package candev

import "github.com/openecu/j1939sock/internal/j1939"

// Deliverer is the fan-out sink a FrameRouter hands decoded datagrams to,
// satisfied by *j1939.Registry.
type Deliverer interface {
	Deliver(md j1939.Metadata, payload []byte, origin *j1939.Endpoint)
}

// FrameRouter demultiplexes raw CAN frames received on one Device by
// J1939 PGN/SA/DA, parsed from the extended 29-bit CAN ID, and forwards
// each as a single-frame datagram to the registry's fan-out. It does not
// reassemble transport-protocol segments; every frame is delivered on its
// own, as received.
type FrameRouter struct {
	ifindex int
	sink    Deliverer
}

// NewFrameRouter builds a router delivering frames arriving on ifindex
// into sink.
func NewFrameRouter(ifindex int, sink Deliverer) *FrameRouter {
	return &FrameRouter{ifindex: ifindex, sink: sink}
}

// Route decodes f and forwards it to the sink. origin is nil: every frame
// reaching this path arrived from the bus, never from a local send.
func (r *FrameRouter) Route(f Frame) {
	pgn, priority, srcAddr, dstAddr := DecodeID(f.ID)
	md := j1939.Metadata{
		Ifindex:  r.ifindex,
		PGN:      pgn,
		Priority: priority,
		SrcAddr:  srcAddr,
		DstAddr:  dstAddr,
	}
	r.sink.Deliver(md, f.Data, nil)
}

// Run drains frames from recv until it closes, routing each one.
func (r *FrameRouter) Run(recv <-chan Frame) {
	for f := range recv {
		r.Route(f)
	}
}
