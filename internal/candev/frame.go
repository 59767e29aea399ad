// Package candev implements the raw CAN frame transport this module's
// socket layer sits on top of: an AF_CAN/SOCK_RAW device plus the J1939
// extended-ID demultiplexer that recovers PGN/source/destination from a
// raw 29-bit CAN identifier.
package candev

import "github.com/openecu/j1939sock/internal/j1939"

// Frame is a raw CAN frame, the wire-level unit candev sends and
// receives. ID is the bare 29-bit identifier without the extended-frame
// flag: Device.Send sets that flag on the wire and the receive loop strips
// it. This package only speaks extended-frame J1939 traffic.
type Frame struct {
	ID   uint32
	Data []byte
}

const (
	idPriorityShift = 26
	idPriorityMask  = 0x7
	idEDPShift      = 25
	idDPShift       = 24
	idPFShift       = 16
	idPFMask        = 0xFF
	idPSShift       = 8
	idPSMask        = 0xFF
	idSAMask        = 0xFF

	pf1Boundary = 0xF0 // PF values below this are PDU1 (destination-specific)
)

// DecodeID splits a raw extended CAN identifier into J1939 addressing
// metadata per the J1939-21 29-bit ID layout:
//
//	bits 28-26 priority, bit 25 EDP, bit 24 DP, bits 23-16 PF,
//	bits 15-8 PS, bits 7-0 source address.
func DecodeID(id uint32) (pgn uint32, priority uint8, srcAddr uint8, dstAddr uint8) {
	priority = uint8((id >> idPriorityShift) & idPriorityMask)
	dp := (id >> idDPShift) & 0x1
	pf := (id >> idPFShift) & idPFMask
	ps := (id >> idPSShift) & idPSMask
	srcAddr = uint8(id & idSAMask)

	if pf < pf1Boundary {
		pgn = (dp << 16) | (pf << 8)
		dstAddr = uint8(ps)
	} else {
		pgn = (dp << 16) | (pf << 8) | ps
		dstAddr = j1939.BroadcastAddr
	}
	return pgn, priority, srcAddr, dstAddr
}

// EncodeID builds a raw extended CAN identifier for an outbound frame
// carrying pgn from srcAddr at the given priority, addressed to dstAddr
// for PDU1-format PGNs (ignored for PDU2, which is always broadcast).
func EncodeID(pgn uint32, priority uint8, srcAddr, dstAddr uint8) uint32 {
	dp := (pgn >> 16) & 0x1
	pf := (pgn >> 8) & 0xFF
	var ps uint32
	if pf < pf1Boundary {
		ps = uint32(dstAddr)
	} else {
		ps = pgn & 0xFF
	}
	id := uint32(priority&idPriorityMask) << idPriorityShift
	id |= dp << idDPShift
	id |= pf << idPFShift
	id |= ps << idPSShift
	id |= uint32(srcAddr)
	return id
}
