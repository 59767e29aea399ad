package tp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openecu/j1939sock/internal/j1939"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentFrame
	block bool
}

type sentFrame struct {
	id   uint32
	data []byte
}

func (f *fakeSender) SendID(ctx context.Context, id uint32, data []byte) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, sentFrame{id: id, data: cp})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestSendSingleDelegatesToSender(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, 2, nil)
	md := j1939.Metadata{Ifindex: 1, PGN: 0x00EA00, SrcAddr: 0x10, DstAddr: 0x20, Priority: 6}
	if err := eng.SendSingle(context.Background(), md, []byte{1, 2}); err != nil {
		t.Fatalf("SendSingle: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("expected 1 frame sent, got %d", sender.count())
	}
}

func TestSessionLifecycleNotifiesAckOnEndpoint(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, 2, nil)
	eng.SetSettleDelay(0)

	ep := j1939.Open(nil)
	ep.SetErrQueue(true)
	md := j1939.Metadata{Ifindex: 1, PGN: 0x00FEE0, SrcAddr: 0x10, DstAddr: j1939.BroadcastAddr, Origin: ep}

	session, err := eng.SendNewSession(context.Background(), md, 14)
	if err != nil {
		t.Fatalf("SendNewSession: %v", err)
	}

	// NotifySched fires synchronously from SendNewSession.
	entry, err := ep.RecvErrQueue()
	if err != nil {
		t.Fatalf("expected a SCHED notification, got error: %v", err)
	}
	if entry.Info != j1939.InfoTstampSched {
		t.Errorf("first notification Info = %v, want InfoTstampSched", entry.Info)
	}

	if err := session.AttachSegment(context.Background(), 0, []byte{1, 2, 3, 4, 5, 6, 7}); err != nil {
		t.Fatalf("AttachSegment 1: %v", err)
	}
	if err := session.AttachSegment(context.Background(), 7, []byte{8, 9, 10, 11, 12, 13, 14}); err != nil {
		t.Fatalf("AttachSegment 2: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		entry, err := ep.RecvErrQueue()
		if err == nil {
			if entry.Info == j1939.InfoTstampAck {
				break
			}
			continue
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ACK notification")
		case <-time.After(time.Millisecond):
		}
	}

	if sender.count() != 2 {
		t.Errorf("expected 2 data-transfer frames sent, got %d", sender.count())
	}
}

func TestSessionByMetadataUnknownFails(t *testing.T) {
	eng := NewEngine(&fakeSender{}, 2, nil)
	_, err := eng.SessionByMetadata(context.Background(), j1939.Metadata{Ifindex: 1}, false)
	if err == nil {
		t.Fatal("expected an error looking up a session that was never created")
	}
}

func TestSendNewSessionBoundedByMaxInFlight(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, 1, nil)

	md1 := j1939.Metadata{Ifindex: 1, SrcAddr: 0x10, DstAddr: 0x20, PGN: 1}
	_, err := eng.SendNewSession(context.Background(), md1, 100)
	if err != nil {
		t.Fatalf("first SendNewSession: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	md2 := j1939.Metadata{Ifindex: 1, SrcAddr: 0x11, DstAddr: 0x21, PGN: 2}
	_, err = eng.SendNewSession(ctx, md2, 100)
	if err == nil {
		t.Fatal("expected second concurrent session to be blocked by maxInFlight=1")
	}
}
