// Package transport defines the abstraction over the underlying chat
// transport used by courier for notification delivery.
//
// The transport is an opaque external dependency: it owns the wire
// protocol, the cryptographic handshake, and message encoding. Courier
// only requires the small surface described by the Transport interface
// and the asynchronous Event stream.
//
// # Transport Interface
//
//	type Transport interface {
//	    Connect(ctx context.Context, credential []byte) error
//	    SendText(ctx context.Context, target, body string) error
//	    SendDocument(ctx context.Context, target string, data []byte, filename, caption string) error
//	    Ping(ctx context.Context) error
//	    Events() <-chan Event
//	    Close() error
//	}
//
// Connect initiates a session, resuming from the supplied credential blob
// when one is available. It returns once the attempt is underway; actual
// progress (pairing required, authenticated, ready, dropped) is reported
// through the Events channel.
//
// # Disconnect Classification
//
// Every disconnect carries a DisconnectReason. Courier's connection
// supervisor treats ReasonLoggedOut as terminal (human re-pairing is
// required), ReasonRateLimited as a signal to back off substantially
// harder, and everything else as a transient condition worth retrying.
//
// # Memory Transport
//
// MemoryTransport is an in-process, scriptable implementation used by the
// test suite and by the courierd demo daemon. It records every send and
// lets callers drive the event stream directly.
package transport
