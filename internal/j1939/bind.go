package j1939

import (
	"context"
	"fmt"
)

// Collaborators bundles the external collaborators a daemon wires into
// every Bind call: the device resolver (internal/netdev) and the
// local-ECU claim registry (internal/localecu). Transport is supplied
// separately at Send time since it is only needed for segmented sends.
type Collaborators struct {
	Resolver DeviceResolver
	ECU      LocalECURegistry
}

// Bind implements the bind algorithm. addr.Addr defaults to
// NoAddr if the caller leaves it unset (zero value), matching the
// kernel's "0xFE unless specified" default.
func (e *Endpoint) Bind(ctx context.Context, col Collaborators, addr SocketAddr) error {
	if addr.Ifindex == 0 {
		return fmt.Errorf("bind: %w: ifindex must be nonzero", ErrInvalidPGN)
	}
	if addr.PGN != 0 && !IsPGNValid(addr.PGN) {
		return fmt.Errorf("bind: %w", ErrInvalidPGN)
	}
	if addr.PGN != 0 && !IsCleanPDU1(addr.PGN) {
		return fmt.Errorf("bind: %w: PDU1 pgn must have a zero destination byte", ErrInvalidPGN)
	}

	e.mu.Lock()
	alreadyBound := e.flags&flagBound != 0
	priorIfindex := e.ifindex
	priorName := e.claimedName
	priorAddr := e.claimedAddr
	e.mu.Unlock()

	if alreadyBound && priorIfindex != addr.Ifindex {
		return fmt.Errorf("bind: %w: endpoint already bound to interface %d", ErrAlreadyBound, priorIfindex)
	}

	m := manager{resolver: col.Resolver, ecu: col.ECU, log: e.log}
	reg, err := getOrCreateRegistry(ctx, m, addr.Ifindex)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}

	rebind := alreadyBound
	if rebind {
		col.ECU.Release(priorIfindex, priorName, priorAddr)
	} else {
		reg.instance.Acquire()
	}

	localAddr := addr.Addr
	if localAddr == 0 {
		localAddr = NoAddr
	}
	if err := col.ECU.Claim(addr.Ifindex, addr.Name, localAddr); err != nil {
		if !rebind {
			reg.instance.Release()
		}
		return fmt.Errorf("bind: claim: %w", err)
	}

	e.mu.Lock()
	e.ifindex = addr.Ifindex
	e.local = LocalAddr{Name: addr.Name, Addr: localAddr}
	if addr.PGN != 0 {
		e.rxPGN = addr.PGN
	} else {
		e.rxPGN = NoPGN
	}
	e.claimed = true
	e.claimedName = addr.Name
	e.claimedAddr = localAddr
	e.instance = reg.instance
	wasBound := e.flags&flagBound != 0
	e.flags |= flagBound
	e.mu.Unlock()

	if !wasBound {
		reg.attach(e)
	}
	return nil
}
