package j1939

import "fmt"

// NotifyAck is invoked by the transport engine when a peer acknowledges
// an outbound session. The entry's BytesAcked, min(packetsDone*7,
// sessionTotal), is the opt-stats payload.
func (e *Endpoint) NotifyAck(sessionTotal, packetsDone int) {
	e.releaseSegFrames()
	e.pushErrQueue(ErrQueueEntry{
		Errno:      ErrnoNoMessage,
		Origin:     OriginTimestamping,
		Info:       InfoTstampAck,
		BytesAcked: ackedBytes(sessionTotal, packetsDone),
	})
}

// NotifySched is invoked when the engine has scheduled/started an
// outbound session on the wire.
func (e *Endpoint) NotifySched(sessionTotal, packetsDone int) {
	e.pushErrQueue(ErrQueueEntry{
		Errno:      ErrnoNoMessage,
		Origin:     OriginTimestamping,
		Info:       InfoTstampSched,
		BytesAcked: ackedBytes(sessionTotal, packetsDone),
	})
}

// NotifyAbort is invoked when an outbound session fails. It both frees
// every pending frame the session was holding and, if the endpoint
// opted in, posts an ABORT notification; it also sets the async-error
// slot so the next Send/Recv observes the failure once.
func (e *Endpoint) NotifyAbort(sessionTotal, packetsDone int, cause error) {
	e.releaseSegFrames()
	e.setLastErr(fmt.Errorf("transport protocol session aborted: %w", cause))
	e.pushErrQueue(ErrQueueEntry{
		Errno:      ErrnoSessionFailed,
		Origin:     OriginLocal,
		Info:       InfoTxAbort,
		BytesAcked: ackedBytes(sessionTotal, packetsDone),
	})
}

// pushErrQueue drops the entry unless the endpoint opted in via
// SetErrQueue(true). The queue is bounded; a full queue simply loses the
// new entry, matching the inbound path's "loss permitted" stance.
func (e *Endpoint) pushErrQueue(entry ErrQueueEntry) {
	if !e.hasFlag(flagErrQueue) {
		return
	}
	select {
	case e.errq <- entry:
	default:
	}
}

// ErrQueueChan exposes the raw notification channel for collaborators
// (internal/diagrelay) that want to subscribe to every event as it is
// produced rather than poll RecvErrQueue.
func (e *Endpoint) ErrQueueChan() <-chan ErrQueueEntry {
	return e.errq
}

// RecvErrQueue returns the next pending error-queue notification, or
// ErrQueueEmpty if none is available.
func (e *Endpoint) RecvErrQueue() (ErrQueueEntry, error) {
	select {
	case entry := <-e.errq:
		return entry, nil
	default:
		return ErrQueueEntry{}, ErrQueueEmpty
	}
}

func ackedBytes(sessionTotal, packetsDone int) int {
	acked := packetsDone * MaxTPPacketSize
	if acked > sessionTotal {
		acked = sessionTotal
	}
	return acked
}
