//go:build linux

package candev

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Device owns one AF_CAN/SOCK_RAW socket bound to a single interface,
// the raw layer cmd/agent-j1939/bus.go's Bus reached straight past (it
// opened a bound SOCK_DGRAM J1939 socket instead); this package provides
// the raw frame plumbing that socket family itself depends on.
type Device struct {
	fd      int
	ifindex int
	ifname  string

	recvCh chan Frame
	stopCh chan struct{}

	log *logrus.Entry
}

// Open creates and binds a raw CAN socket on ifaceName.
func Open(ifaceName string, log *logrus.Entry) (*Device, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("candev: socket: %w", err)
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("candev: InterfaceByName %q: %w", ifaceName, err)
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("candev: bind: %w", err)
	}

	d := &Device{
		fd:      fd,
		ifindex: iface.Index,
		ifname:  ifaceName,
		recvCh:  make(chan Frame, 256),
		stopCh:  make(chan struct{}),
		log:     log.WithField("iface", ifaceName),
	}
	go d.readLoop()
	return d, nil
}

// Ifindex returns the bound interface index.
func (d *Device) Ifindex() int { return d.ifindex }

// Recv returns the channel frames arrive on.
func (d *Device) Recv() <-chan Frame { return d.recvCh }

// SendID writes one raw CAN frame given a bare identifier and payload,
// satisfying internal/tp.FrameSender so the transport-protocol engine
// can hand it individual data-transfer frames without depending on the
// Frame type.
func (d *Device) SendID(ctx context.Context, id uint32, data []byte) error {
	return d.Send(ctx, Frame{ID: id, Data: data})
}

// Send writes one raw CAN frame, building the 16-byte struct can_frame
// wire layout (4-byte ID + 1-byte DLC + 3 bytes padding + 8 data bytes).
func (d *Device) Send(ctx context.Context, f Frame) error {
	if len(f.Data) > 8 {
		return fmt.Errorf("candev: frame payload %d exceeds 8 bytes", len(f.Data))
	}
	buf := make([]byte, 16)
	id := f.ID | unix.CAN_EFF_FLAG
	buf[0] = byte(id)
	buf[1] = byte(id >> 8)
	buf[2] = byte(id >> 16)
	buf[3] = byte(id >> 24)
	buf[4] = byte(len(f.Data))
	copy(buf[8:], f.Data)

	_, err := unix.Write(d.fd, buf)
	if err != nil {
		return fmt.Errorf("candev: write: %w", err)
	}
	return nil
}

// Close stops the receive loop and closes the socket.
func (d *Device) Close() error {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	return unix.Close(d.fd)
}

func (d *Device) readLoop() {
	defer close(d.recvCh)
	buf := make([]byte, 16)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		n, err := unix.Read(d.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EBADF) || errors.Is(err, net.ErrClosed) {
				return
			}
			d.log.WithError(err).Warn("candev: read error, retrying")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if n < 16 {
			continue
		}

		id := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		id &^= unix.CAN_EFF_FLAG
		dlc := int(buf[4])
		if dlc > 8 {
			dlc = 8
		}
		data := make([]byte, dlc)
		copy(data, buf[8:8+dlc])

		select {
		case d.recvCh <- Frame{ID: id, Data: data}:
		case <-d.stopCh:
			return
		default:
			d.log.Warn("candev: recv channel full, frame dropped")
		}
	}
}
