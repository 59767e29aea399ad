//go:build linux

package candev

import (
	"context"
	"testing"
	"time"
)

// TestOpenSendRecvRoundTrip exercises the full socket lifecycle against a
// vcan0 virtual CAN interface. It is skipped wherever one isn't present
// (most sandboxes and CI runners without `ip link add vcan0 type vcan`
// run first), since creating one requires CAP_NET_ADMIN this process may
// not hold.
func TestOpenSendRecvRoundTrip(t *testing.T) {
	dev, err := Open("vcan0", nil)
	if err != nil {
		t.Skipf("vcan0 not available in this sandbox: %v", err)
	}
	defer dev.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id := EncodeID(0x00EA00, 6, 0x10, 0x21)
	if err := dev.SendID(ctx, id, []byte{1, 2, 3}); err != nil {
		t.Fatalf("SendID: %v", err)
	}

	select {
	case f := <-dev.Recv():
		if f.ID != id {
			t.Errorf("received ID %#x, want %#x", f.ID, id)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for loopback frame")
	}
}

func TestSendRejectsOversizePayload(t *testing.T) {
	dev, err := Open("vcan0", nil)
	if err != nil {
		t.Skipf("vcan0 not available in this sandbox: %v", err)
	}
	defer dev.Close()

	err = dev.Send(context.Background(), Frame{ID: 1, Data: make([]byte, 9)})
	if err == nil {
		t.Error("expected an error sending a 9-byte payload")
	}
}
