package netdev

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// EventKind distinguishes the link-state transitions Watch reports.
type EventKind int

const (
	// EventGone is emitted when the watched interface index disappears
	// entirely (deleted, not merely brought down).
	EventGone EventKind = iota
	// EventDown is emitted when the link is administratively or
	// operationally taken down without being removed.
	EventDown
)

// Event is one link-state transition for the watched interface.
type Event struct {
	Ifindex int
	Kind    EventKind
}

// Watch subscribes to netlink link updates and reports transitions for
// ifindex until ctx is cancelled, resolving the "device-gone" terminal
// state. cmd/j1939d consumes the channel and, on an EventGone, calls
// j1939.Registry.MarkGone, which wakes endpoints draining in Release so
// they return ErrInterfaceGone. The channel closes after an EventGone.
func Watch(ctx context.Context, ifindex int, log *logrus.Entry) (<-chan Event, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return nil, err
	}

	out := make(chan Event, 1)
	go func() {
		defer close(out)
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Link.Attrs().Index != ifindex {
					continue
				}
				switch {
				case upd.Header.Type == 17: // RTM_DELLINK
					log.WithField("ifindex", ifindex).Info("watched interface removed")
					select {
					case out <- Event{Ifindex: ifindex, Kind: EventGone}:
					case <-ctx.Done():
					}
					return
				case upd.Link.Attrs().OperState == netlink.OperDown:
					select {
					case out <- Event{Ifindex: ifindex, Kind: EventDown}:
					case <-ctx.Done():
					}
				}
			}
		}
	}()
	return out, nil
}
