// Package netdev resolves CAN network devices by interface index and
// watches for their removal, standing in for the kernel's netdevice
// notifier chain.
package netdev

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/openecu/j1939sock/internal/j1939"
)

// ErrNoSuchDevice is returned when the requested interface index has no
// backing link, or the link it names is not CAN-capable.
var ErrNoSuchDevice = errors.New("netdev: no such device")

// Device is the resolved handle internal/j1939.Device is satisfied by.
type Device struct {
	ifindex int
	name    string
	canLike bool
	mtu     int
}

// Ifindex implements j1939.Device.
func (d *Device) Ifindex() int { return d.ifindex }

// IsJ1939Capable implements j1939.Device.
func (d *Device) IsJ1939Capable() bool { return d.canLike }

// Name returns the interface name (e.g. "can0").
func (d *Device) Name() string { return d.name }

// MTU returns the link MTU, used to flag CAN-FD-capable links.
func (d *Device) MTU() int { return d.mtu }

// Resolver wraps netlink.LinkByIndex, honoring an allow-list of link
// kinds in addition to the kernel's native "can" link type so tests can
// run against a virtual/dummy link standing in for a real CAN interface.
type Resolver struct {
	// ExtraKinds names additional netlink.Link.Type() values accepted as
	// CAN-capable, for environments without a real vcan module loaded.
	ExtraKinds []string
	log        *logrus.Entry
}

// NewResolver constructs a Resolver. extraKinds is typically empty in
// production and set to []string{"dummy","veth"} only in test harnesses.
func NewResolver(log *logrus.Entry, extraKinds ...string) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{ExtraKinds: extraKinds, log: log}
}

// Resolve implements j1939.DeviceResolver.
func (r *Resolver) Resolve(ctx context.Context, ifindex int) (j1939.Device, error) {
	link, err := netlink.LinkByIndex(ifindex)
	if err != nil {
		return nil, fmt.Errorf("%w: ifindex %d: %v", ErrNoSuchDevice, ifindex, err)
	}

	attrs := link.Attrs()
	kind := link.Type()
	canLike := kind == "can"
	for _, k := range r.ExtraKinds {
		if kind == k {
			canLike = true
			break
		}
	}

	d := &Device{
		ifindex: attrs.Index,
		name:    attrs.Name,
		canLike: canLike,
		mtu:     attrs.MTU,
	}
	r.log.WithFields(logrus.Fields{
		"ifindex": d.ifindex,
		"name":    d.name,
		"kind":    kind,
		"j1939":   d.canLike,
	}).Debug("resolved network device")

	if !d.canLike {
		return nil, fmt.Errorf("%w: ifindex %d is a %q link, not CAN", ErrNoSuchDevice, ifindex, kind)
	}
	return d, nil
}
