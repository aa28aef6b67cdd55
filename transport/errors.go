package transport

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for courier transports
var (
	// ErrNotConnected indicates a send was attempted without a ready session
	ErrNotConnected = errors.New("transport not connected")

	// ErrConnectionLost indicates the session dropped mid-operation
	ErrConnectionLost = errors.New("connection lost")

	// ErrAuthRequired indicates the stored credential was rejected and a
	// human must re-pair the session
	ErrAuthRequired = errors.New("authentication required")

	// ErrRateLimited indicates the remote side signaled overload
	ErrRateLimited = errors.New("rate limited by remote")

	// ErrRejected indicates the remote side refused this specific message
	// (bad target, oversized payload); the session itself is still usable
	ErrRejected = errors.New("message rejected")
)

// SendError wraps a transport failure with the operation and target that
// caused it.
type SendError struct {
	Op     string // operation that failed, e.g. "send_text"
	Target string // recipient if relevant
	Err    error  // underlying error
}

func (e *SendError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// NewSendError creates a SendError for the given operation.
func NewSendError(op, target string, err error) *SendError {
	return &SendError{Op: op, Target: target, Err: err}
}

// IsConnectionError reports whether err indicates the session is unusable,
// as opposed to the remote side refusing one specific message. Connection
// errors pause queue draining and feed back into the connection
// supervisor's disconnect handling.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
