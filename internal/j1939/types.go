// Package j1939 implements the socket-layer endpoint of a J1939 protocol
// stack: address/filter matching, the endpoint bind/connect/release
// lifecycle, and the outbound segmentation coordinator. It does not
// implement transport-protocol sessions, raw CAN framing, or network
// device management; those are external collaborators reached through the
// interfaces in collaborators.go.
package j1939

// Address-family constants, mirrored from the J1939-21 addressing rules.
const (
	// NoAddr is the "unassigned address" placeholder (0xFE).
	NoAddr uint8 = 0xFE
	// BroadcastAddr is the global destination address (0xFF).
	BroadcastAddr uint8 = 0xFF
	// NoName marks an unused 64-bit NAME field.
	NoName uint64 = 0
	// NoPGN marks an unused/wildcard PGN filter (18 bits all set).
	NoPGN uint32 = 0x3FFFF
	// PGNMax is the largest representable PGN value (18 bits).
	PGNMax uint32 = 0x3FFFF
	// FilterMax bounds the length of a single SetFilter call.
	FilterMax = 512
	// MaxSingleFramePayload is the largest payload sent as one CAN frame.
	MaxSingleFramePayload = 8
	// MaxTPPacketSize is the per-segment payload the transport protocol
	// can carry in a single data-transfer frame (7 data bytes, 1 sequence
	// byte consumed by the TP layer itself).
	MaxTPPacketSize = 7
	// MaxBAMPayload is the largest datagram BAM/TP (non-extended) can
	// carry: 255 packets * 7 bytes/packet.
	MaxBAMPayload = 255 * MaxTPPacketSize
)

// IsPDU1 reports whether pgn uses the PDU1 format, where the low byte is a
// destination address rather than a group extension.
func IsPDU1(pgn uint32) bool {
	return (pgn>>8)&0xFF < 0xF0
}

// IsCleanPDU1 reports whether pgn is valid for storage as a bare PGN: PDU1
// PGNs must carry a zero destination-address byte.
func IsCleanPDU1(pgn uint32) bool {
	if IsPDU1(pgn) {
		return pgn&0xFF == 0
	}
	return true
}

// IsPGNValid reports whether pgn is in-range to be evaluated as a filter or
// rx-filter value ("no pgn" and out-of-range values are not valid).
func IsPGNValid(pgn uint32) bool {
	return pgn <= PGNMax
}

// IsUnicast reports whether addr is a concrete bus address rather than the
// broadcast address.
func IsUnicast(addr uint8) bool {
	return addr != BroadcastAddr
}

// IsAddressValid reports whether addr names an assigned bus address.
func IsAddressValid(addr uint8) bool {
	return addr != NoAddr
}

// LocalAddr is the bound (source) side of an endpoint's address pair.
type LocalAddr struct {
	Name uint64
	Addr uint8
}

// PeerAddr is the connected (destination) side of an endpoint's address
// pair, plus the PGN used as the default send/receive filter.
type PeerAddr struct {
	Name uint64
	Addr uint8
	PGN  uint32
}

// SocketAddr is the user-facing address structure passed to Bind/Connect,
// the Go analogue of sockaddr_can's j1939 sub-record.
type SocketAddr struct {
	Ifindex int
	Name    uint64
	Addr    uint8
	PGN     uint32
}

// Filter is one entry of a user-installed filter list (SO_J1939_FILTER).
// Each field is pre-masked on install: Pgn &= PgnMask, etc.
type Filter struct {
	Pgn     uint32
	PgnMask uint32
	Addr    uint8
	AddrMask uint8
	Name     uint64
	NameMask uint64
}

func (f Filter) normalize() Filter {
	f.Pgn &= f.PgnMask
	f.Addr &= f.AddrMask
	f.Name &= f.NameMask
	return f
}

// Metadata is the per-frame control block carried alongside a datagram,
// both inbound (as parsed by the CAN/TP layer) and outbound (as stamped by
// the endpoint before handoff).
type Metadata struct {
	Ifindex  int
	PGN      uint32
	SrcAddr  uint8
	DstAddr  uint8
	SrcName  uint64
	DstName  uint64
	Priority uint8

	// Origin is the endpoint that produced this frame locally, or nil for
	// frames arriving from the bus. Used for loopback/echo and the
	// DontRoute/Confirm flag computation in the inbound path.
	Origin *Endpoint

	// MsgFlags carries DontRoute/Confirm/NonBlocking/ErrQueue, mirrored
	// from the recv/send flag table.
	MsgFlags MsgFlags
}

// MsgFlags is a bitmask of the send/recv flags honored by this layer.
type MsgFlags uint8

const (
	MsgNone MsgFlags = 0
	// MsgDontRoute is set on inbound frames that originated at any local
	// endpoint (never user-settable on send).
	MsgDontRoute MsgFlags = 1 << (iota - 1)
	// MsgConfirm is set on inbound frames that originated at the
	// receiving endpoint itself (loopback confirmation).
	MsgConfirm
	// MsgNonBlocking requests a non-blocking send/recv.
	MsgNonBlocking
	// MsgErrQueue selects the error queue on Recv.
	MsgErrQueue
)

// RecvMeta is the ancillary data returned alongside a received payload,
// the Go analogue of a recvmsg cmsg chain.
type RecvMeta struct {
	DestAddr *uint8
	DestName *uint64
	Priority uint8
	Flags    MsgFlags
	Sender   SocketAddr
}
