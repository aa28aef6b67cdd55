// Package queue implements the FIFO holding area for sends that could not
// be delivered because the transport session was not ready.
//
// Messages are drained in enqueue order once the connection supervisor
// reports a ready session. A message that fails with a message-level error
// is requeued at the tail with its attempt counter advanced until the
// maximum attempt ceiling is reached, at which point it is dropped and the
// failure is surfaced to the caller. The queue is memory-only: losing
// queued notifications across a process restart is an accepted tradeoff.
package queue
