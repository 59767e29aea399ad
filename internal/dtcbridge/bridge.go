// Package dtcbridge restores the DM1/DM2 diagnostic-trouble-code
// surfacing cmd/agent-j1939/frame_processor.go performed directly
// against raw frames, rebuilt on top of this module's own endpoint
// instead of a bespoke raw-socket reader.
package dtcbridge

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/sirupsen/logrus"

	"github.com/openecu/j1939sock/common"
	"github.com/openecu/j1939sock/internal/j1939"
	"github.com/openecu/j1939sock/pkg/storage"
)

// Bridge owns a promiscuous endpoint bound to the DM1/DM2 broadcast PGNs
// and republishes newly-seen active codes on Codes.
type Bridge struct {
	ep    *j1939.Endpoint
	db    *bolt.DB
	Codes chan common.DTCCode
	log   *logrus.Entry
}

// Open binds a fresh endpoint on ifindex, filtered to DM1/DM2 via the
// user filter list, and prepares the dedup store at dbPath.
func Open(ctx context.Context, col j1939.Collaborators, ifindex int, dbPath string, log *logrus.Entry) (*Bridge, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	db, err := storage.OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("dtcbridge: %w", err)
	}

	ep := j1939.Open(log.WithField("component", "dtcbridge"))
	if err := ep.Bind(ctx, col, j1939.SocketAddr{Ifindex: ifindex}); err != nil {
		db.Close()
		return nil, fmt.Errorf("dtcbridge: bind: %w", err)
	}
	ep.SetPromisc(true)
	if err := ep.SetFilter([]j1939.Filter{
		{Pgn: PGNDM1, PgnMask: j1939.PGNMax},
		{Pgn: PGNDM2, PgnMask: j1939.PGNMax},
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("dtcbridge: filter: %w", err)
	}

	return &Bridge{
		ep:    ep,
		db:    db,
		Codes: make(chan common.DTCCode, 64),
		log:   log,
	}, nil
}

// Run drains inbound DM1/DM2 datagrams until ctx is cancelled, decoding
// and deduplicating codes before forwarding them on Codes.
func (b *Bridge) Run(ctx context.Context) {
	defer close(b.Codes)
	for {
		dg, err := b.ep.Recv(ctx, j1939.MsgNone)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.WithError(err).Warn("dtcbridge: recv error")
			continue
		}

		srcAddr := dg.Meta.Sender.Addr
		codes, err := decodeDTCs(dg.Payload, srcAddr)
		if err != nil {
			b.log.WithError(err).Warn("dtcbridge: malformed DM payload")
			continue
		}

		for _, c := range codes {
			isNew, err := storage.IsNew(b.db, uint32(c.SPN), uint8(c.FMI))
			if err != nil {
				b.log.WithError(err).Error("dtcbridge: dedup check failed")
				continue
			}
			if !isNew {
				continue
			}
			select {
			case b.Codes <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close releases the endpoint and dedup store.
func (b *Bridge) Close(ctx context.Context, ecu j1939.LocalECURegistry) error {
	_ = b.ep.Release(ctx, ecu)
	return b.db.Close()
}
