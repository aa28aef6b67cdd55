package transport

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryTransport implements Transport entirely in-process. It is used by
// the test suite and the courierd demo daemon: sends are recorded instead
// of hitting a network, and the session lifecycle is driven by the caller
// through DeliverReady, Drop and CompletePairing.
type MemoryTransport struct {
	mu        sync.Mutex
	events    chan Event
	connected bool

	pairingRequired bool
	pairingCode     string
	credential      []byte

	sendErr error
	pingErr error

	texts     []SentText
	documents []SentDocument
	connects  int
	closes    int
}

// SentText records one SendText call.
type SentText struct {
	Target string
	Body   string
}

// SentDocument records one SendDocument call.
type SentDocument struct {
	Target   string
	Data     []byte
	Filename string
	Caption  string
}

// NewMemoryTransport creates an in-process transport. The session resumes
// immediately on Connect unless RequirePairing was set.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		events:     make(chan Event, 32),
		credential: []byte("memory-session"),
	}
}

// RequirePairing makes the next Connect surface the given pairing code
// instead of resuming, regardless of any supplied credential.
func (m *MemoryTransport) RequirePairing(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairingRequired = true
	m.pairingCode = code
}

// SetCredential sets the credential blob reported on authentication.
func (m *MemoryTransport) SetCredential(blob []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credential = blob
}

// SetSendError makes subsequent sends fail with err; nil restores success.
func (m *MemoryTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetPingError makes subsequent probes fail with err; nil restores success.
func (m *MemoryTransport) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// Connect implements Transport.Connect.
func (m *MemoryTransport) Connect(ctx context.Context, credential []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.connects++
	pairing := m.pairingRequired || (credential == nil && m.credential == nil)
	code := m.pairingCode
	blob := m.credential
	m.mu.Unlock()

	if pairing {
		logrus.WithFields(logrus.Fields{
			"function": "MemoryTransport.Connect",
			"code":     code,
		}).Debug("Pairing required")
		m.emit(Event{Type: EventPairingCode, PairingCode: code})
		return nil
	}

	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	m.emit(Event{Type: EventConnected, Credential: blob})
	m.emit(Event{Type: EventReady})
	return nil
}

// CompletePairing simulates the human accepting the pairing code. The
// session authenticates and becomes ready.
func (m *MemoryTransport) CompletePairing() {
	m.mu.Lock()
	m.pairingRequired = false
	m.connected = true
	blob := m.credential
	m.mu.Unlock()

	m.emit(Event{Type: EventConnected, Credential: blob})
	m.emit(Event{Type: EventReady})
}

// Drop simulates a session drop with the given reason.
func (m *MemoryTransport) Drop(reason DisconnectReason) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()

	m.emit(Event{Type: EventDisconnected, Reason: reason})
}

// SendText implements Transport.SendText.
func (m *MemoryTransport) SendText(ctx context.Context, target, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return NewSendError("send_text", target, ErrNotConnected)
	}
	if m.sendErr != nil {
		return NewSendError("send_text", target, m.sendErr)
	}
	m.texts = append(m.texts, SentText{Target: target, Body: body})
	return nil
}

// SendDocument implements Transport.SendDocument.
func (m *MemoryTransport) SendDocument(ctx context.Context, target string, data []byte, filename, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return NewSendError("send_document", target, ErrNotConnected)
	}
	if m.sendErr != nil {
		return NewSendError("send_document", target, m.sendErr)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.documents = append(m.documents, SentDocument{
		Target:   target,
		Data:     stored,
		Filename: filename,
		Caption:  caption,
	})
	return nil
}

// Ping implements Transport.Ping.
func (m *MemoryTransport) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	return m.pingErr
}

// Events implements Transport.Events.
func (m *MemoryTransport) Events() <-chan Event {
	return m.events
}

// Close implements Transport.Close. The event channel stays open so the
// transport can be reconnected, mirroring a real client being restarted.
func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.closes++
	return nil
}

// SentTexts returns a copy of all recorded text sends.
func (m *MemoryTransport) SentTexts() []SentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentText, len(m.texts))
	copy(out, m.texts)
	return out
}

// SentDocuments returns a copy of all recorded document sends.
func (m *MemoryTransport) SentDocuments() []SentDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentDocument, len(m.documents))
	copy(out, m.documents)
	return out
}

// ConnectCount returns how many times Connect was called.
func (m *MemoryTransport) ConnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// CloseCount returns how many times Close was called.
func (m *MemoryTransport) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *MemoryTransport) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "MemoryTransport.emit",
			"event":    ev.Type.String(),
		}).Warn("Event buffer full, dropping event")
	}
}
