package supervisor

import "github.com/opd-ai/courier/transport"

// State represents the connection state of the transport session.
type State uint8

const (
	// StateDisconnected means no session exists.
	StateDisconnected State = iota
	// StateConnecting means a connection attempt is in flight.
	StateConnecting
	// StateAwaitingPairing means the transport surfaced a pairing code and
	// is waiting for a human to accept it.
	StateAwaitingPairing
	// StateAuthenticated means the session authenticated but is not yet
	// confirmed usable for traffic.
	StateAuthenticated
	// StateReady means sends may be attempted immediately.
	StateReady
	// StateClosing means an explicit Stop is in progress.
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only view of the supervisor's state, safe to retain.
type Snapshot struct {
	State State

	// PairingCode is set only while State is StateAwaitingPairing.
	PairingCode string

	// RequiresPairing reports that the stored credential was invalidated
	// and automatic reconnection is disabled until Start is called again.
	RequiresPairing bool

	// Attempt is the current reconnect attempt counter. It resets to zero
	// on every successful transition into StateReady.
	Attempt int

	// LastDisconnect is the reason for the most recent drop.
	LastDisconnect transport.DisconnectReason
}
