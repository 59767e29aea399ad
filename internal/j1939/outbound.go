package j1939

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// resolvedDest is the destination this send call settled on, after
// reconciling an explicit dest argument against the endpoint's
// bound/connected state.
type resolvedDest struct {
	name uint64
	addr uint8
	pgn  uint32
}

// resolveDest implements the destination half of Send's precondition
// checks.
func (e *Endpoint) resolveDest(dest *SocketAddr) (resolvedDest, error) {
	e.mu.Lock()
	ifindex := e.ifindex
	connected := e.flags&flagConnected != 0
	peer := e.peer
	broadcastOK := e.flags&flagBroadcastOK != 0
	e.mu.Unlock()

	if dest != nil {
		if dest.Ifindex != 0 && dest.Ifindex != ifindex {
			return resolvedDest{}, fmt.Errorf("send: %w: destination ifindex mismatch", ErrInvalidPGN)
		}
		if dest.PGN != 0 && (!IsPGNValid(dest.PGN) || !IsCleanPDU1(dest.PGN)) {
			return resolvedDest{}, fmt.Errorf("send: %w", ErrInvalidPGN)
		}
		addr := dest.Addr
		if addr == 0 {
			addr = NoAddr
		}
		if !IsUnicast(addr) && !broadcastOK {
			return resolvedDest{}, fmt.Errorf("send: %w", ErrAccessDenied)
		}
		pgn := NoPGN
		if dest.PGN != 0 {
			pgn = dest.PGN
		}
		return resolvedDest{name: dest.Name, addr: addr, pgn: pgn}, nil
	}

	if !connected {
		return resolvedDest{}, fmt.Errorf("send: %w", ErrNoAddr)
	}
	if !IsUnicast(peer.Addr) && !broadcastOK {
		return resolvedDest{}, fmt.Errorf("send: %w", ErrAccessDenied)
	}
	return resolvedDest{name: peer.Name, addr: peer.Addr, pgn: peer.PGN}, nil
}

// Send validates preconditions, then dispatches payload as a single
// frame (len(payload) <= 8 bytes) or a segmented transport-protocol
// session. Returns the number of bytes accepted, which on a partial
// segmented send (ErrWouldBlock/ErrInterrupted) is less than len(payload)
// so the caller can retry with the remainder.
func (e *Endpoint) Send(ctx context.Context, tr Transport, payload []byte, dest *SocketAddr) (int, error) {
	e.mu.Lock()
	bound := e.flags&flagBound != 0
	hasSource := e.local.Name != NoName || e.local.Addr != NoAddr
	local := e.local
	ifindex := e.ifindex
	prio := e.prio
	e.mu.Unlock()

	if !bound {
		return 0, fmt.Errorf("send: %w", ErrBadFileDescriptor)
	}
	if !hasSource {
		return 0, fmt.Errorf("send: %w", ErrBadFileDescriptor)
	}

	rd, err := e.resolveDest(dest)
	if err != nil {
		return 0, err
	}

	if len(payload) > MaxBAMPayload {
		return 0, fmt.Errorf("send: %w", ErrMsgSize)
	}

	md := Metadata{
		Ifindex:  ifindex,
		SrcAddr:  local.Addr,
		SrcName:  local.Name,
		DstAddr:  rd.addr,
		DstName:  rd.name,
		PGN:      rd.pgn,
		Priority: prio,
		Origin:   e,
	}

	if len(payload) <= MaxSingleFramePayload {
		return e.sendSingle(ctx, tr, md, payload)
	}
	return e.sendSegmented(ctx, tr, md, payload)
}

// sendSingle hands a single-frame payload straight to the transport.
func (e *Endpoint) sendSingle(ctx context.Context, tr Transport, md Metadata, payload []byte) (int, error) {
	if err := tr.SendSingle(ctx, md, payload); err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	return len(payload), nil
}

// sendSegmented implements the multi-packet transfer state machine. Each
// call may be a fresh datagram (seg.done == 0) or a continuation of one
// already in flight; continuations must sum exactly to the originally recorded
// total or the call fails with ErrIO.
func (e *Endpoint) sendSegmented(ctx context.Context, tr Transport, md Metadata, payload []byte) (int, error) {
	e.mu.Lock()
	fresh := e.seg.done == 0
	if fresh {
		e.seg.expectedTotal = e.seg.done + len(payload)
	} else if e.seg.done+len(payload) != e.seg.expectedTotal {
		e.mu.Unlock()
		return 0, fmt.Errorf("send: %w", ErrIO)
	}
	extended := e.seg.expectedTotal > MaxBAMPayload
	startOffset := e.seg.done
	e.mu.Unlock()

	var session Session
	var err error
	if fresh {
		session, err = tr.SendNewSession(ctx, md, e.seg.expectedTotal)
	} else {
		session, err = tr.SessionByMetadata(ctx, md, extended)
	}
	if err != nil {
		e.resetSeg()
		return 0, fmt.Errorf("send: %w", err)
	}

	queued := 0
	offset := startOffset
	for queued < len(payload) {
		end := queued + MaxTPPacketSize
		if end > len(payload) {
			end = len(payload)
		}
		segment := payload[queued:end]

		err := session.AttachSegment(ctx, offset, segment)
		if err != nil {
			if ctx.Err() != nil {
				e.mu.Lock()
				e.seg.done += queued
				e.mu.Unlock()
				return queued, ErrInterrupted
			}
			if errors.Is(err, ErrWouldBlock) {
				e.mu.Lock()
				e.seg.done += queued
				e.mu.Unlock()
				return queued, ErrWouldBlock
			}
			e.resetSeg()
			return queued, fmt.Errorf("send: %w", err)
		}

		// Ownership of this frame passes to the transport engine; it is
		// freed in one step, with every other frame of this session,
		// when the engine reports ACK or ABORT.
		atomic.AddInt32(&e.segFrames, 1)
		e.addPending(1)

		queued += len(segment)
		offset += len(segment)
	}

	e.mu.Lock()
	e.seg.done = 0
	e.seg.expectedTotal = 0
	e.mu.Unlock()
	return len(payload), nil
}

func (e *Endpoint) resetSeg() {
	e.mu.Lock()
	e.seg.done = 0
	e.seg.expectedTotal = 0
	e.mu.Unlock()
}
