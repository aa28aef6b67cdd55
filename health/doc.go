// Package health implements the liveness monitor for the transport
// session.
//
// The connection supervisor can believe a session is ready while the
// transport is silently unresponsive. The monitor catches these zombie
// sessions by probing the transport on a fixed interval whenever the
// supervisor reports Ready. A failed or timed-out probe is reported back
// to the supervisor as a disconnect signal; the monitor never mutates
// connection state itself, so the state machine remains the single
// authority. If no activity at all is observed for a configurable
// multiple of the probe interval, the monitor forces a full supervisor
// restart.
package health
