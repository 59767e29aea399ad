package j1939

import "context"

// Device is the resolved network device this package consumes, satisfied
// by *internal/netdev.Device. Kept as a narrow interface here so the
// core package never imports netdev directly — collaborators are wired by
// the daemon, not by this package.
type Device interface {
	// Ifindex returns the resolved interface index.
	Ifindex() int
	// IsJ1939Capable reports whether the device is a CAN-family link
	// usable for J1939 traffic.
	IsJ1939Capable() bool
}

// DeviceResolver resolves an interface index to a Device, satisfied by
// *internal/netdev.Resolver, which fails with netdev.ErrNoSuchDevice if
// the index names no CAN-capable link. Bind also rejects a resolved
// Device whose IsJ1939Capable is false, with ErrNoInterface.
type DeviceResolver interface {
	Resolve(ctx context.Context, ifindex int) (Device, error)
}

// LocalECURegistry is the claim/release collaborator this package
// consumes, satisfied by internal/localecu.Registry.
type LocalECURegistry interface {
	Claim(ifindex int, name uint64, addr uint8) error
	Release(ifindex int, name uint64, addr uint8)
}

// Transport is the segmentation engine this package hands multi-frame
// datagrams to, satisfied by internal/tp.Engine. SendSingle is used for
// payloads that fit one CAN frame; SendNewSession/SessionByMetadata/
// AttachSegment implement the multi-packet transfer state machine.
type Transport interface {
	SendSingle(ctx context.Context, md Metadata, payload []byte) error
	SendNewSession(ctx context.Context, md Metadata, total int) (Session, error)
	SessionByMetadata(ctx context.Context, md Metadata, extended bool) (Session, error)
}

// Session is a handle to one in-flight multi-packet transport-protocol
// datagram, satisfied by internal/tp.Session.
type Session interface {
	AttachSegment(ctx context.Context, offset int, payload []byte) error
}

// ErrQueueEntry is one notification produced during an outbound transfer,
// delivered on an opted-in endpoint's error queue.
type ErrQueueEntry struct {
	TimestampUnixNano int64
	Errno             ErrQueueErrno
	Origin            ErrQueueOrigin
	Info              ErrQueueInfo
	TSKey             uint32
	BytesAcked        int
}

// ErrQueueErrno mirrors the errno field.
type ErrQueueErrno int

const (
	ErrnoNoMessage ErrQueueErrno = iota
	ErrnoSessionFailed
)

// ErrQueueOrigin mirrors the origin field.
type ErrQueueOrigin int

const (
	OriginTimestamping ErrQueueOrigin = iota
	OriginLocal
)

// ErrQueueInfo mirrors the info-code field.
type ErrQueueInfo int

const (
	InfoTstampAck ErrQueueInfo = iota
	InfoTstampSched
	InfoTxAbort
)
