// Package tp is a reference transport-protocol session engine: enough to
// drive realistic segmentation and error-queue behavior against the
// internal/j1939 outbound path and tests, without claiming conformance to
// the J1939-21 BAM/RTS-CTS wire protocol (no CTS pacing, no abort codes,
// no real handshake frames are exchanged on the bus).
package tp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/openecu/j1939sock/internal/j1939"
)

// FrameSender is the single-CAN-frame transmit path a Engine delegates
// to for payloads that never enter the segmentation machinery (and for
// each individual transport-protocol data-transfer frame it emits).
type FrameSender interface {
	SendID(ctx context.Context, id uint32, data []byte) error
}

// Engine implements j1939.Transport. One Engine typically serves every
// endpoint bound to a single interface, sharing its FrameSender.
type Engine struct {
	sender FrameSender
	log    *logrus.Entry

	sem *semaphore.Weighted

	mu       sync.Mutex
	sessions map[sessionKey]*Session

	// settleDelay is how long AttachSegment waits before "transmitting"
	// a segment and, when the session completes, calling back ACK.
	// Configurable so tests don't sleep through real timers.
	settleDelay time.Duration
}

type sessionKey struct {
	ifindex int
	srcAddr uint8
	dstAddr uint8
	pgn     uint32
}

func keyOf(md j1939.Metadata, extended bool) sessionKey {
	pgn := md.PGN
	if extended {
		pgn |= 1 << 20 // disambiguate extended-TP sessions from BAM/TP ones sharing addressing
	}
	return sessionKey{ifindex: md.Ifindex, srcAddr: md.SrcAddr, dstAddr: md.DstAddr, pgn: pgn}
}

// NewEngine constructs an Engine bounded to maxInFlight concurrent
// sessions transmitting at once, backed by sender for individual frames.
func NewEngine(sender FrameSender, maxInFlight int64, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &Engine{
		sender:      sender,
		log:         log,
		sem:         semaphore.NewWeighted(maxInFlight),
		sessions:    make(map[sessionKey]*Session),
		settleDelay: 2 * time.Millisecond,
	}
}

// SetSettleDelay overrides the per-segment settle delay; tests use this
// to shrink it to near-zero.
func (eng *Engine) SetSettleDelay(d time.Duration) { eng.settleDelay = d }

// SendSingle implements j1939.Transport for payloads small enough to
// need no session at all.
func (eng *Engine) SendSingle(ctx context.Context, md j1939.Metadata, payload []byte) error {
	id := frameID(md)
	return eng.sender.SendID(ctx, id, payload)
}

// SendNewSession implements j1939.Transport: allocates and registers a
// fresh Session for a multi-packet datagram.
func (eng *Engine) SendNewSession(ctx context.Context, md j1939.Metadata, total int) (j1939.Session, error) {
	if err := eng.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", j1939.ErrTPBusy, err)
	}
	extended := total > j1939.MaxBAMPayload

	s := &Session{
		eng:      eng,
		md:       md,
		total:    total,
		extended: extended,
		endpoint: md.Origin,
	}
	eng.mu.Lock()
	eng.sessions[keyOf(md, extended)] = s
	eng.mu.Unlock()

	if s.endpoint != nil {
		s.endpoint.NotifySched(total, 0)
	}
	return s, nil
}

// SessionByMetadata implements j1939.Transport: looks up the session a
// continuation Send call should attach its next segment to.
func (eng *Engine) SessionByMetadata(ctx context.Context, md j1939.Metadata, extended bool) (j1939.Session, error) {
	eng.mu.Lock()
	s, ok := eng.sessions[keyOf(md, extended)]
	eng.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tp: %w", errNoSession)
	}
	return s, nil
}

func (eng *Engine) releaseSession(s *Session) {
	eng.mu.Lock()
	delete(eng.sessions, keyOf(s.md, s.extended))
	eng.mu.Unlock()
	eng.sem.Release(1)
}

// frameID builds the extended CAN identifier for one data-transfer frame
// of md; the transport-protocol data-page/connection-management PGNs
// this would normally ride on (0xEC00/0xEB00) are out of scope for this
// reference engine, which instead stamps the destination datagram's own
// PGN directly, since no real peer parses these frames.
func frameID(md j1939.Metadata) uint32 {
	dp := (md.PGN >> 16) & 0x1
	pf := (md.PGN >> 8) & 0xFF
	var ps uint32
	if pf < 0xF0 {
		ps = uint32(md.DstAddr)
	} else {
		ps = md.PGN & 0xFF
	}
	id := uint32(md.Priority&0x7) << 26
	id |= dp << 24
	id |= pf << 16
	id |= ps << 8
	id |= uint32(md.SrcAddr)
	return id
}

// runSettled transmits every queued segment with a bounded worker pool,
// in arrival order per session, and returns the first sender error; the
// caller, settle, turns that into NotifyAck or NotifyAbort. An error from
// the sender cancels the remaining segments of the session.
func (s *Session) runSettled(ctx context.Context, segments [][]byte) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1) // one in-flight frame per session preserves offset order
	for _, seg := range segments {
		seg := seg
		g.Go(func() error {
			select {
			case <-time.After(s.eng.settleDelay):
			case <-gctx.Done():
				return gctx.Err()
			}
			return s.eng.sender.SendID(gctx, frameID(s.md), seg)
		})
	}
	return g.Wait()
}
