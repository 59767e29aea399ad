package j1939

// filterList is the atomically-swapped handle behind Endpoint.filters. A
// nil list (or one with zero entries) means "accept everything", matching
// the kernel's empty-filter-list semantics.
type filterList struct {
	entries []Filter
}

func newFilterList(entries []Filter) *filterList {
	normalized := make([]Filter, len(entries))
	for i, f := range entries {
		normalized[i] = f.normalize()
	}
	return &filterList{entries: normalized}
}

// matchesUserFilter reports whether md satisfies at least one entry of fl.
// An empty or nil list always matches.
func (fl *filterList) matchesUserFilter(md Metadata) bool {
	if fl == nil || len(fl.entries) == 0 {
		return true
	}
	for _, m := range fl.entries {
		if md.PGN&m.PgnMask != m.Pgn {
			continue
		}
		if md.SrcAddr&m.AddrMask != m.Addr {
			continue
		}
		if md.SrcName&m.NameMask != m.Name {
			continue
		}
		return true
	}
	return false
}

// matchDest implements the destination-match rule for endpoint e
// receiving frame md.
func matchDest(e *Endpoint, md Metadata) bool {
	if e.hasFlag(flagPromisc) {
		return true
	}
	local := e.localAddr()
	if local.Name != NoName && md.DstName != NoName {
		return local.Name == md.DstName
	}
	if IsUnicast(md.DstAddr) {
		return md.DstAddr == local.Addr
	}
	return e.hasFlag(flagBroadcastOK)
}

// matchSource implements the source-match rule, evaluated only for
// CONNECTED endpoints.
func matchSource(e *Endpoint, md Metadata) bool {
	peer := e.peerAddr()
	if peer.Name != NoName && md.SrcName != NoName {
		return peer.Name == md.SrcName
	}
	return peer.Addr == md.SrcAddr
}

// matchPGNFilter implements the optional PGN receive filter: "no pgn"
// (an out-of-range/NoPGN value) disables the check.
func matchPGNFilter(e *Endpoint, md Metadata) bool {
	rx := e.rxFilterPGN()
	if !IsPGNValid(rx) || rx == NoPGN {
		return true
	}
	return md.PGN == rx
}

// accepts combines every match predicate into the single admission test
// the inbound path applies per candidate endpoint.
func accepts(e *Endpoint, md Metadata) bool {
	if !matchDest(e, md) {
		return false
	}
	if e.hasFlag(flagConnected) && !matchSource(e, md) {
		return false
	}
	if !matchPGNFilter(e, md) {
		return false
	}
	return e.filters.Load().matchesUserFilter(md)
}
