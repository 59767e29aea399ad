package j1939

import "fmt"

// GetName implements the get-name operation: the bound local
// side by default, or the connected peer side when peer is true.
func (e *Endpoint) GetName(peer bool) (SocketAddr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if peer {
		if e.flags&flagConnected == 0 {
			return SocketAddr{}, ErrAddressNotAvailable
		}
		return SocketAddr{
			Ifindex: e.ifindex,
			Name:    e.peer.Name,
			Addr:    e.peer.Addr,
			PGN:     e.peer.PGN,
		}, nil
	}
	if e.flags&flagBound == 0 {
		return SocketAddr{}, fmt.Errorf("getname: %w", ErrNotBound)
	}
	return SocketAddr{
		Ifindex: e.ifindex,
		Name:    e.local.Name,
		Addr:    e.local.Addr,
		PGN:     e.rxPGN,
	}, nil
}
