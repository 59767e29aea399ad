package j1939

import "errors"

// Sentinel errors returned by the bind/connect/send/recv paths. Callers
// should match with errors.Is; wrapped context is added with fmt.Errorf
// %w at each call site.
var (
	// ErrAlreadyBound is returned by Bind when the endpoint is already
	// bound to a different interface. A second Bind on the same interface
	// succeeds and replaces the local address.
	ErrAlreadyBound = errors.New("j1939: endpoint already bound")

	// ErrNotBound is returned by operations that require a completed
	// bind (Connect, Send with an implicit local address).
	ErrNotBound = errors.New("j1939: endpoint not bound")

	// ErrAlreadyConnected is not returned by Connect: a second Connect
	// replaces the existing peer address. No function in this package
	// returns it.
	ErrAlreadyConnected = errors.New("j1939: endpoint already connected")

	// ErrNoInterface is returned when an operation names an interface
	// index that the registry has no record of.
	ErrNoInterface = errors.New("j1939: no such interface")

	// ErrInterfaceGone is returned once an endpoint's bound interface has
	// been torn down; the endpoint is no longer usable for I/O.
	ErrInterfaceGone = errors.New("j1939: bound interface is gone")

	// ErrNoAddr is returned by Send when no peer address is known and
	// none was supplied at the call site.
	ErrNoAddr = errors.New("j1939: destination address required")

	// ErrInvalidPGN is returned when a PGN value is out of range or
	// carries a nonzero PDU1 destination byte where a bare PGN is
	// required. Bind, Connect and Send also return it for a zero or
	// mismatched interface index.
	ErrInvalidPGN = errors.New("j1939: invalid PGN")

	// ErrMsgSize is returned by Send when the payload exceeds the
	// maximum transport-protocol datagram size.
	ErrMsgSize = errors.New("j1939: message too large")

	// ErrFilterTooLarge is returned by SetFilter when the supplied list
	// exceeds FilterMax entries.
	ErrFilterTooLarge = errors.New("j1939: filter list too large")

	// ErrClosed is not returned by any function in this package. After
	// Release the endpoint's state flags are cleared, so Send fails with
	// ErrBadFileDescriptor and GetName with ErrNotBound.
	ErrClosed = errors.New("j1939: endpoint closed")

	// ErrWouldBlock is returned by non-blocking Send/Recv calls that
	// cannot complete immediately.
	ErrWouldBlock = errors.New("j1939: operation would block")

	// ErrQueueEmpty is returned by Recv(MsgErrQueue) when no error-queue
	// entry is pending.
	ErrQueueEmpty = errors.New("j1939: error queue empty")

	// ErrNoLocalName names the case of an endpoint whose local address
	// carries only a bus address and no NAME. No function in this package
	// returns it.
	ErrNoLocalName = errors.New("j1939: no local NAME claimed")

	// ErrTPBusy is returned by the transport-protocol collaborator when
	// a session slot could not be obtained before the context deadline.
	ErrTPBusy = errors.New("j1939: transport protocol session unavailable")

	// ErrAccessDenied is returned when a broadcast send or connect is
	// attempted without the broadcast-permitted flag set.
	ErrAccessDenied = errors.New("j1939: broadcast not permitted")

	// ErrPermission is returned by SetSendPrio when the
	// requested priority is below 2 and the caller lacks the privilege.
	ErrPermission = errors.New("j1939: insufficient privilege for priority")

	// ErrOutOfDomain is returned by SetSendPrio when the
	// priority is outside 0..7.
	ErrOutOfDomain = errors.New("j1939: priority out of range")

	// ErrAddressNotAvailable is returned by GetName(peer=true) on an
	// endpoint that is not CONNECTED.
	ErrAddressNotAvailable = errors.New("j1939: address not available")

	// ErrNoProtocolOption is returned for an unrecognized option name.
	ErrNoProtocolOption = errors.New("j1939: unknown option")

	// ErrIO is returned when a segmented-send continuation's size does
	// not match the datagram's recorded expected total.
	ErrIO = errors.New("j1939: mid-datagram size mismatch")

	// ErrInterrupted is returned by a blocking call whose context was
	// cancelled before it could complete; callers should treat it like
	// the "signal interrupted a blocking syscall" case it models.
	ErrInterrupted = errors.New("j1939: interrupted")

	// ErrNoMemory is not returned by any function in this package: Send
	// does not check for segment allocation failure, and the inbound path
	// drops silently without an error.
	ErrNoMemory = errors.New("j1939: allocation failure")

	// ErrBadFileDescriptor is returned by Send when the endpoint is not
	// bound, or is bound but has no source address set.
	ErrBadFileDescriptor = errors.New("j1939: send before bind or no source set")
)
