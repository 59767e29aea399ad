package j1939

// deliverOne applies the admission test and copies md+payload into a
// single candidate endpoint e's receive queue if it matches. It never
// blocks: a full receive queue silently drops the clone, matching the
// CAN bus's own no-delivery-guarantee at this layer.
func deliverOne(e *Endpoint, md Metadata, payload []byte, origin *Endpoint) {
	e.mu.Lock()
	bound := e.flags&(flagBound|flagConnected) != 0
	sameIface := e.ifindex == md.Ifindex
	recvOwn := e.flags&flagRecvOwn != 0
	e.mu.Unlock()

	if !bound || !sameIface {
		return
	}
	if origin == e && !recvOwn {
		return
	}
	if !accepts(e, md) {
		return
	}

	clone := make([]byte, len(payload))
	copy(clone, payload)

	flags := MsgNone
	if origin != nil {
		flags |= MsgDontRoute
	}
	if origin == e {
		flags |= MsgConfirm
	}

	meta := RecvMeta{
		Priority: md.Priority,
		Flags:    flags,
		Sender: SocketAddr{
			Ifindex: md.Ifindex,
			Name:    md.SrcName,
			Addr:    md.SrcAddr,
			PGN:     md.PGN,
		},
	}
	if IsAddressValid(md.DstAddr) {
		da := md.DstAddr
		meta.DestAddr = &da
	}
	if md.DstName != NoName {
		dn := md.DstName
		meta.DestName = &dn
	}

	e.rx.push(Datagram{Payload: clone, Meta: meta})
}
