package j1939

import "fmt"

// Connect implements the connect algorithm.
func (e *Endpoint) Connect(addr SocketAddr) error {
	e.mu.Lock()
	bound := e.flags&flagBound != 0
	boundIfindex := e.ifindex
	broadcastOK := e.flags&flagBroadcastOK != 0
	e.mu.Unlock()

	if !bound {
		return fmt.Errorf("connect: %w", ErrNotBound)
	}
	if addr.Ifindex != 0 && addr.Ifindex != boundIfindex {
		return fmt.Errorf("connect: %w: ifindex %d does not match bound interface %d", ErrInvalidPGN, addr.Ifindex, boundIfindex)
	}
	if addr.PGN != 0 && (!IsPGNValid(addr.PGN) || !IsCleanPDU1(addr.PGN)) {
		return fmt.Errorf("connect: %w", ErrInvalidPGN)
	}

	peerAddr := addr.Addr
	if peerAddr == 0 {
		peerAddr = NoAddr
	}
	broadcast := addr.Name == NoName && peerAddr == NoAddr
	if broadcast && !broadcastOK {
		return fmt.Errorf("connect: %w", ErrAccessDenied)
	}

	pgn := NoPGN
	if addr.PGN != 0 {
		pgn = addr.PGN
	}

	e.mu.Lock()
	e.peer = PeerAddr{Name: addr.Name, Addr: peerAddr, PGN: pgn}
	e.flags |= flagConnected
	e.mu.Unlock()
	return nil
}
