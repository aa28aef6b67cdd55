// Package supervisor owns the transport session lifecycle.
//
// A single Supervisor instance is the only writer of the connection state
// machine and the only owner of the transport: it connects, detects when
// human re-pairing is required, reacts to drops, schedules reconnects with
// jittered exponential backoff, and tears the session down on Stop. Every
// other component either reads an immutable Snapshot or subscribes to
// state transitions.
//
// # State Machine
//
//	Disconnected -> Connecting        Start() or backoff timer fired
//	Connecting   -> AwaitingPairing   transport needs a pairing code
//	Connecting   -> Authenticated     stored credential resumed
//	AwaitingPairing -> Authenticated  pairing code accepted
//	Authenticated -> Ready            session usable for sends
//	any          -> Disconnected      drop, I/O error, or Stop()
//
// A drop classified as "logged out" clears the credential store and
// disables automatic reconnection: a human must re-pair and call Start
// again. Every other drop schedules a reconnect, with a substantially
// larger floor delay when the remote side signaled overload.
//
// Send attempts fail fast with transport.ErrNotConnected while the state
// is not Ready. Queueing policy belongs to the delivery coordinator, not
// here.
package supervisor
