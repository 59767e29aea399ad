package j1939

import (
	"context"
	"errors"
	"testing"
	"time"

	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type EndpointSuite struct{}

var _ = Suite(&EndpointSuite{})

func (s *EndpointSuite) TestBindClaimsAndAttaches(c *C) {
	e := Open(nil)
	col, ix := fakeCollaborators()
	err := e.Bind(context.Background(), col, SocketAddr{Ifindex: ix, Addr: 0x20})
	c.Assert(err, IsNil)
	c.Assert(e.IsBound(), Equals, true)
	c.Assert(e.Ifindex(), Equals, ix)

	reg, ok := RegistryFor(ix)
	c.Assert(ok, Equals, true)
	count, _ := reg.Snapshot()
	c.Assert(count, Equals, 1)
}

func (s *EndpointSuite) TestBindRejectsZeroIfindex(c *C) {
	e := Open(nil)
	col, _ := fakeCollaborators()
	err := e.Bind(context.Background(), col, SocketAddr{})
	c.Assert(errors.Is(err, ErrInvalidPGN), Equals, true)
}

func (s *EndpointSuite) TestBindRejectsSecondDifferentInterface(c *C) {
	e := Open(nil)
	ix1, ix2 := nextIfindex(), nextIfindex()
	col := Collaborators{Resolver: newFakeResolver(ix1, ix2), ECU: newFakeECU()}
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix1}), IsNil)
	err := e.Bind(context.Background(), col, SocketAddr{Ifindex: ix2})
	c.Assert(err, NotNil)
}

func (s *EndpointSuite) TestBindUnknownInterfaceFails(c *C) {
	e := Open(nil)
	col := Collaborators{Resolver: newFakeResolver(), ECU: newFakeECU()}
	err := e.Bind(context.Background(), col, SocketAddr{Ifindex: nextIfindex()})
	c.Assert(err, NotNil)
}

func (s *EndpointSuite) TestConnectRequiresBind(c *C) {
	e := Open(nil)
	err := e.Connect(SocketAddr{Addr: 0x30})
	c.Assert(err, NotNil)
}

func (s *EndpointSuite) TestConnectUnicast(c *C) {
	e := Open(nil)
	col, ix := fakeCollaborators()
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix}), IsNil)
	c.Assert(e.Connect(SocketAddr{Addr: 0x30}), IsNil)
	c.Assert(e.IsConnected(), Equals, true)

	peer, err := e.GetName(true)
	c.Assert(err, IsNil)
	c.Assert(peer.Addr, Equals, uint8(0x30))
}

func (s *EndpointSuite) TestConnectBroadcastRequiresPermission(c *C) {
	e := Open(nil)
	col, ix := fakeCollaborators()
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix}), IsNil)
	err := e.Connect(SocketAddr{})
	c.Assert(err, NotNil)

	e.SetBroadcastPermitted(true)
	c.Assert(e.Connect(SocketAddr{}), IsNil)
}

func (s *EndpointSuite) TestGetNameUnbound(c *C) {
	e := Open(nil)
	_, err := e.GetName(false)
	c.Assert(err, NotNil)
}

func (s *EndpointSuite) TestOptionsFilterTooLarge(c *C) {
	e := Open(nil)
	big := make([]Filter, FilterMax+1)
	err := e.SetFilter(big)
	c.Assert(errors.Is(err, ErrFilterTooLarge), Equals, true)
}

func (s *EndpointSuite) TestSendPrioRange(c *C) {
	e := Open(nil)
	c.Assert(e.SetSendPrio(8), NotNil)
	c.Assert(e.SetSendPrio(6), IsNil)
	c.Assert(e.SendPrio(), Equals, uint8(6))
}

func (s *EndpointSuite) TestSendPrioPrivilege(c *C) {
	e := Open(nil)
	err := e.SetSendPrio(1)
	c.Assert(err, NotNil)

	SetPrivilegeCheck(func() bool { return true })
	defer SetPrivilegeCheck(func() bool { return false })
	c.Assert(e.SetSendPrio(1), IsNil)
}

func (s *EndpointSuite) TestErrQueueTogglePurges(c *C) {
	e := Open(nil)
	e.SetErrQueue(true)
	e.NotifySched(100, 1)
	_, err := e.RecvErrQueue()
	c.Assert(err, IsNil)

	e.NotifySched(100, 2)
	e.SetErrQueue(false)
	_, err = e.RecvErrQueue()
	c.Assert(err, Equals, ErrQueueEmpty)
}

func (s *EndpointSuite) TestSendSingleFrame(c *C) {
	e := Open(nil)
	col, ix := fakeCollaborators()
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix, Addr: 0x10}), IsNil)
	tr := &fakeTransport{}
	n, err := e.Send(context.Background(), tr, []byte{1, 2, 3}, &SocketAddr{Addr: 0x20})
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 3)
	c.Assert(tr.singles, HasLen, 1)
	c.Assert(tr.singles[0].DstAddr, Equals, uint8(0x20))
}

func (s *EndpointSuite) TestSendRequiresBind(c *C) {
	e := Open(nil)
	_, err := e.Send(context.Background(), &fakeTransport{}, []byte{1}, &SocketAddr{Addr: 0x20})
	c.Assert(err, NotNil)
}

func (s *EndpointSuite) TestSendSegmentedQueuesAllSegmentsAndTracksPending(c *C) {
	e := Open(nil)
	col, ix := fakeCollaborators()
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix, Addr: 0x10}), IsNil)
	tr := &fakeTransport{}
	payload := make([]byte, 20)
	n, err := e.Send(context.Background(), tr, payload, &SocketAddr{Addr: 0x20})
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 20)
	c.Assert(tr.lastSession.segments, HasLen, 3) // 7+7+6 bytes
	c.Assert(e.Pending(), Equals, int32(3))

	e.NotifyAck(20, 3)
	c.Assert(e.Pending(), Equals, int32(0))
}

func (s *EndpointSuite) TestSendSegmentedAbortFreesPendingAndSetsLastErr(c *C) {
	e := Open(nil)
	col, ix := fakeCollaborators()
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix, Addr: 0x10}), IsNil)
	tr := &fakeTransport{}
	_, err := e.Send(context.Background(), tr, make([]byte, 10), &SocketAddr{Addr: 0x20})
	c.Assert(err, IsNil)
	c.Assert(e.Pending(), Equals, int32(2))

	e.NotifyAbort(10, 0, ErrIO)
	c.Assert(e.Pending(), Equals, int32(0))

	_, recvErr := e.Recv(context.Background(), MsgNone)
	c.Assert(recvErr, NotNil)
}

// TestSendSegmentedWouldBlockPreservesProgressForRetry covers the transport
// stalling partway through a 1000-byte datagram: the session accepts 350
// bytes (50 segments) then reports ErrWouldBlock, which must behave like an
// interrupted send (queued bytes kept, endpoint left mid-datagram) rather
// than discarding progress, so the caller can retry with the remainder.
func (s *EndpointSuite) TestSendSegmentedWouldBlockPreservesProgressForRetry(c *C) {
	e := Open(nil)
	col, ix := fakeCollaborators()
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix, Addr: 0x10}), IsNil)
	tr := &fakeTransport{}

	// First datagram completes fully, leaving 143 frames pending (no
	// ACK yet), so the second datagram's stall can be told apart from it.
	n, err := e.Send(context.Background(), tr, make([]byte, 1000), &SocketAddr{Addr: 0x20})
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 1000)
	c.Assert(e.Pending(), Equals, int32(143)) // ceil(1000/7)

	// Second datagram: the session accepts 50 segments (350 bytes) of a
	// fresh 1000-byte send, then the 51st reports ErrWouldBlock.
	tr.nextFailAfter = 50
	tr.nextFailErr = ErrWouldBlock

	n, err = e.Send(context.Background(), tr, make([]byte, 1000), &SocketAddr{Addr: 0x20})
	c.Assert(errors.Is(err, ErrWouldBlock), Equals, true)
	c.Assert(n, Equals, 350)
	c.Assert(e.Pending(), Equals, int32(143+50))

	tr.lastSession.failAfter = 0
	n, err = e.Send(context.Background(), tr, make([]byte, 650), &SocketAddr{Addr: 0x20})
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 650)
	c.Assert(e.Pending(), Equals, int32(143+143))
}

func (s *EndpointSuite) TestInboundDeliveryHonorsPromisc(c *C) {
	e := Open(nil)
	col, ix := fakeCollaborators()
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix, Addr: 0x10}), IsNil)
	e.SetPromisc(true)

	reg, ok := RegistryFor(ix)
	c.Assert(ok, Equals, true)
	reg.Deliver(Metadata{Ifindex: ix, DstAddr: 0x99, SrcAddr: 0x50, PGN: 0xFEE0}, []byte{9, 9}, nil)

	dg, err := e.Recv(context.Background(), MsgNonBlocking)
	c.Assert(err, IsNil)
	c.Assert(dg.Payload, DeepEquals, []byte{9, 9})
	c.Assert(dg.Meta.Sender.Addr, Equals, uint8(0x50))
}

func (s *EndpointSuite) TestInboundDeliverySkipsOtherInterface(c *C) {
	e := Open(nil)
	ix1, ix2 := nextIfindex(), nextIfindex()
	col := Collaborators{Resolver: newFakeResolver(ix1, ix2), ECU: newFakeECU()}
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix1, Addr: 0x10}), IsNil)
	e.SetPromisc(true)
	deliverOne(e, Metadata{Ifindex: ix2, DstAddr: 0x10}, []byte{1}, nil)

	_, err := e.Recv(context.Background(), MsgNonBlocking)
	c.Assert(err, Equals, ErrWouldBlock)
}

func (s *EndpointSuite) TestReleaseWaitsForPendingThenDetaches(c *C) {
	e := Open(nil)
	ecu := newFakeECU()
	ix := nextIfindex()
	col := Collaborators{Resolver: newFakeResolver(ix), ECU: ecu}
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix, Addr: 0x10}), IsNil)

	e.addPending(1)
	released := make(chan error, 1)
	go func() { released <- e.Release(context.Background(), ecu) }()

	select {
	case <-released:
		c.Fatal("Release returned before pending drained")
	case <-time.After(50 * time.Millisecond):
	}

	e.addPending(-1)
	select {
	case err := <-released:
		c.Assert(err, IsNil)
	case <-time.After(time.Second):
		c.Fatal("Release did not return after pending drained")
	}
	c.Assert(e.IsBound(), Equals, false)
}

func (s *EndpointSuite) TestReleaseCancelledContextReturnsInterrupted(c *C) {
	e := Open(nil)
	ecu := newFakeECU()
	ix := nextIfindex()
	col := Collaborators{Resolver: newFakeResolver(ix), ECU: ecu}
	c.Assert(e.Bind(context.Background(), col, SocketAddr{Ifindex: ix, Addr: 0x10}), IsNil)
	e.addPending(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Release(ctx, ecu)
	c.Assert(err, Equals, ErrInterrupted)
}
