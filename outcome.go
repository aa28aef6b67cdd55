package courier

import "github.com/opd-ai/courier/queue"

// DeliveryStatus is the terminal or intermediate fate of a notification.
type DeliveryStatus uint8

const (
	// StatusDelivered means the transport accepted the message.
	StatusDelivered DeliveryStatus = iota
	// StatusQueued means the message is waiting for a ready session.
	StatusQueued
	// StatusFailed means the message exhausted its delivery attempts and
	// was dropped.
	StatusFailed
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusQueued:
		return "queued"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome describes what happened to one notification. Queued messages
// produce a second, terminal Outcome through OnDeliveryOutcome once the
// queue drains.
type Outcome struct {
	MessageID string
	Target    string
	Kind      queue.Kind
	Status    DeliveryStatus
	Err       error
}

// OutcomeListener receives terminal outcomes for messages that were
// queued. It replaces log-scraping as the fallback contract for
// fire-and-forget sends.
type OutcomeListener func(Outcome)
