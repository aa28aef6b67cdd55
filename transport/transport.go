package transport

import "context"

// Transport is the interface courier requires from the underlying chat
// transport. Implementations own the wire protocol; courier only drives
// the session lifecycle and submits outbound messages.
type Transport interface {
	// Connect initiates a session. A non-nil credential asks the
	// transport to resume a previously authenticated session; nil forces
	// a fresh pairing. Progress is reported via Events.
	Connect(ctx context.Context, credential []byte) error

	// SendText delivers a plain text message to the target recipient.
	SendText(ctx context.Context, target, body string) error

	// SendDocument delivers a document attachment to the target recipient.
	SendDocument(ctx context.Context, target string, data []byte, filename, caption string) error

	// Ping issues a lightweight liveness probe over the active session.
	Ping(ctx context.Context) error

	// Events returns the stream of session events. The channel is owned
	// by the transport and remains valid across reconnects.
	Events() <-chan Event

	// Close tears down the active session, if any.
	Close() error
}

// EventType identifies a session event emitted by the transport.
type EventType uint8

const (
	// EventPairingCode means the transport needs human re-pairing and has
	// a one-time pairing code available.
	EventPairingCode EventType = iota
	// EventConnected means the session authenticated successfully. The
	// event carries the resumable credential blob when the transport
	// issued a fresh one.
	EventConnected
	// EventReady means the session is fully usable for sends. Transports
	// that do not separate authentication from readiness emit this
	// immediately after EventConnected.
	EventReady
	// EventDisconnected means the session dropped; Reason says why.
	EventDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventPairingCode:
		return "pairing_code"
	case EventConnected:
		return "connected"
	case EventReady:
		return "ready"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a single session event.
type Event struct {
	Type EventType

	// PairingCode is set for EventPairingCode.
	PairingCode string

	// Credential is set for EventConnected when the transport minted a
	// new resumable credential blob. The blob is opaque to courier.
	Credential []byte

	// Reason is set for EventDisconnected.
	Reason DisconnectReason
}

// DisconnectReason classifies why a session dropped.
type DisconnectReason uint8

const (
	// ReasonUnknown covers drops the transport could not classify.
	ReasonUnknown DisconnectReason = iota
	// ReasonNetworkError covers I/O failures and broken connections.
	ReasonNetworkError
	// ReasonTimeout covers protocol or probe timeouts.
	ReasonTimeout
	// ReasonServerClosed covers server-initiated idle closes.
	ReasonServerClosed
	// ReasonRateLimited means the remote side signaled overload; retries
	// must use a substantially larger floor delay.
	ReasonRateLimited
	// ReasonLoggedOut means the credential was explicitly invalidated.
	// The session cannot be resumed; a human must re-pair.
	ReasonLoggedOut
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNetworkError:
		return "network_error"
	case ReasonTimeout:
		return "timeout"
	case ReasonServerClosed:
		return "server_closed"
	case ReasonRateLimited:
		return "rate_limited"
	case ReasonLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// RequiresPairing reports whether the reason invalidates the stored
// credential, requiring human re-pairing before the next session.
func (r DisconnectReason) RequiresPairing() bool {
	return r == ReasonLoggedOut
}

// RateLimited reports whether the reason is an overload signal from the
// remote side.
func (r DisconnectReason) RateLimited() bool {
	return r == ReasonRateLimited
}
