package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind identifies the payload type of a queued message.
type Kind uint8

const (
	// KindText is a plain text message.
	KindText Kind = iota
	// KindDocument is a document attachment.
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Message is one pending send job.
type Message struct {
	ID         string
	Kind       Kind
	Target     string
	Body       string
	Document   []byte
	Filename   string
	Caption    string
	EnqueuedAt time.Time
	Attempts   int
}

// NewText creates a pending text message.
func NewText(target, body string) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Kind:       KindText,
		Target:     target,
		Body:       body,
		EnqueuedAt: time.Now(),
	}
}

// NewDocument creates a pending document message.
func NewDocument(target string, data []byte, filename, caption string) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Kind:       KindDocument,
		Target:     target,
		Document:   data,
		Filename:   filename,
		Caption:    caption,
		EnqueuedAt: time.Now(),
	}
}

// Queue is a mutex-guarded FIFO of pending messages.
type Queue struct {
	mu          sync.Mutex
	items       []*Message
	maxAttempts int
}

// New creates a queue whose messages are dropped after maxAttempts failed
// delivery attempts. Non-positive values fall back to 3.
func New(maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Queue{maxAttempts: maxAttempts}
}

// Enqueue appends a message at the tail.
func (q *Queue) Enqueue(m *Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	depth := len(q.items)
	q.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Queue.Enqueue",
		"id":       m.ID,
		"kind":     m.Kind.String(),
		"target":   m.Target,
		"depth":    depth,
	}).Debug("Message enqueued")
}

// Dequeue removes and returns the head of the queue.
func (q *Queue) Dequeue() (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

// PushFront reinserts a message at the head. Used when draining pauses for
// a connection-level failure: the attempt does not count against the
// message and FIFO order is preserved.
func (q *Queue) PushFront(m *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*Message{m}, q.items...)
}

// Requeue records a failed delivery attempt. The message returns to the
// tail unless its attempt budget is exhausted, in which case Requeue
// returns false and the caller must surface a terminal failure.
func (q *Queue) Requeue(m *Message) bool {
	m.Attempts++
	if m.Attempts >= q.maxAttempts {
		logrus.WithFields(logrus.Fields{
			"function": "Queue.Requeue",
			"id":       m.ID,
			"target":   m.Target,
			"attempts": m.Attempts,
		}).Warn("Message exhausted delivery attempts")
		return false
	}

	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	return true
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
