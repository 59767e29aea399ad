package j1939

import "context"

// Recv implements the receive half of the flag table: MsgErrQueue
// selects the error queue instead of the datagram queue, MsgNonBlocking
// requests an immediate return instead of blocking.
func (e *Endpoint) Recv(ctx context.Context, flags MsgFlags) (Datagram, error) {
	if flags&MsgErrQueue != 0 {
		entry, err := e.RecvErrQueue()
		if err != nil {
			return Datagram{}, err
		}
		return Datagram{Meta: RecvMeta{Flags: MsgErrQueue}, Payload: errQueuePayload(entry)}, nil
	}
	if err := e.takeLastErr(); err != nil {
		return Datagram{}, err
	}
	return e.rx.pop(ctx, flags&MsgNonBlocking != 0)
}

// errQueuePayload renders an ErrQueueEntry as a zero-length message: the
// entry itself travels entirely in ancillary data, so the payload is
// always empty.
func errQueuePayload(ErrQueueEntry) []byte {
	return nil
}
