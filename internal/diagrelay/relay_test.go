package diagrelay

import (
	"context"
	"testing"
	"time"

	"github.com/openecu/j1939sock/common"
	"github.com/openecu/j1939sock/internal/j1939"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Broker == "" || cfg.ClientID == "" || cfg.BaseTopic == "" {
		t.Fatalf("DefaultConfig left a field empty: %+v", cfg)
	}
}

func TestInfoName(t *testing.T) {
	cases := []struct {
		info j1939.ErrQueueInfo
		want string
	}{
		{j1939.InfoTstampAck, "ack"},
		{j1939.InfoTstampSched, "sched"},
		{j1939.InfoTxAbort, "abort"},
		{j1939.ErrQueueInfo(99), "unknown"},
	}
	for _, c := range cases {
		if got := infoName(c.info); got != c.want {
			t.Errorf("infoName(%v) = %q, want %q", c.info, got, c.want)
		}
	}
}

// TestWatchDrainsWithoutConnectedClient exercises Watch's read loop
// against an endpoint that never connected to a broker: publish logs a
// warning and drops the event, but the goroutine must still drain the
// channel and exit cleanly when ctx is cancelled.
func TestWatchDrainsWithoutConnectedClient(t *testing.T) {
	ep := j1939.Open(nil)
	ep.SetErrQueue(true)
	ep.NotifySched(10, 1)

	r := NewRelay(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	r.Watch(ctx, 1, 0x20, ep)

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond) // give the goroutine a chance to return
}

// TestWatchDTCDrainsFullChannelWithoutClient exercises the
// dtcbridge.Bridge.Codes wiring: WatchDTC must keep draining a full channel
// while no broker is connected so the bridge never blocks on a send, and
// exit once the channel closes.
func TestWatchDTCDrainsFullChannelWithoutClient(t *testing.T) {
	codes := make(chan common.DTCCode, 64)
	for i := 0; i < 64; i++ {
		codes <- common.DTCCode{MID: i, SPN: i, FMI: 1}
	}

	r := NewRelay(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.WatchDTC(ctx, codes)

	select {
	case codes <- common.DTCCode{MID: 65}:
	case <-time.After(time.Second):
		t.Fatal("WatchDTC did not drain the channel")
	}

	close(codes)
	time.Sleep(20 * time.Millisecond)
}
