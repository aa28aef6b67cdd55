package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/courier/transport"
)

// memCreds is an in-memory CredentialStore for testing.
type memCreds struct {
	mu      sync.Mutex
	blob    []byte
	deleted bool
}

func (m *memCreds) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blob, nil
}

func (m *memCreds) Save(blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = blob
	m.deleted = false
	return nil
}

func (m *memCreds) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = nil
	m.deleted = true
	return nil
}

func (m *memCreds) wasDeleted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted
}

func (m *memCreds) current() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blob
}

func fastBackoff() BackoffConfig {
	return BackoffConfig{
		Base:           10 * time.Millisecond,
		Max:            50 * time.Millisecond,
		RateLimitFloor: 20 * time.Millisecond,
		MaxAttempts:    10,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for: %s", msg)
}

func TestStartReachesReady(t *testing.T) {
	chat := transport.NewMemoryTransport()
	creds := &memCreds{}
	sup := New(chat, creds, fastBackoff())
	defer sup.Stop()

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready state")

	if chat.ConnectCount() != 1 {
		t.Errorf("Expected 1 connect call, got %d", chat.ConnectCount())
	}
	if creds.current() == nil {
		t.Error("Credential should be persisted on authentication")
	}

	snap := sup.Snapshot()
	if snap.Attempt != 0 {
		t.Errorf("Attempt counter should reset on Ready, got %d", snap.Attempt)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	chat := transport.NewMemoryTransport()
	sup := New(chat, nil, fastBackoff())
	defer sup.Stop()

	if err := sup.Start(); err != nil {
		t.Fatalf("First Start failed: %v", err)
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready state")

	// Rapid double Start must never produce two live transport sessions.
	if chat.ConnectCount() != 1 {
		t.Errorf("Expected exactly 1 connect call, got %d", chat.ConnectCount())
	}
}

func TestPairingFlow(t *testing.T) {
	chat := transport.NewMemoryTransport()
	chat.RequirePairing("CODE-1234")
	sup := New(chat, nil, fastBackoff())
	defer sup.Stop()

	var gotCode string
	var mu sync.Mutex
	sup.OnPairingCode(func(code string) {
		mu.Lock()
		gotCode = code
		mu.Unlock()
	})

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return sup.State() == StateAwaitingPairing }, "awaiting pairing")

	snap := sup.Snapshot()
	if snap.PairingCode != "CODE-1234" {
		t.Errorf("Expected pairing code in snapshot, got %q", snap.PairingCode)
	}
	mu.Lock()
	if gotCode != "CODE-1234" {
		t.Errorf("Pairing listener expected CODE-1234, got %q", gotCode)
	}
	mu.Unlock()

	chat.CompletePairing()

	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready after pairing")

	// Pairing material is transient: gone once authenticated.
	if snap := sup.Snapshot(); snap.PairingCode != "" {
		t.Errorf("Pairing code should be cleared, got %q", snap.PairingCode)
	}
}

func TestLoggedOutIsTerminal(t *testing.T) {
	chat := transport.NewMemoryTransport()
	creds := &memCreds{}
	sup := New(chat, creds, fastBackoff())
	defer sup.Stop()

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready state")

	connects := chat.ConnectCount()
	chat.Drop(transport.ReasonLoggedOut)

	waitFor(t, time.Second, func() bool {
		snap := sup.Snapshot()
		return snap.State == StateDisconnected && snap.RequiresPairing
	}, "terminal disconnect with pairing required")

	if !creds.wasDeleted() {
		t.Error("Credential store should be cleared on logout")
	}

	// No automatic reconnect after a logout.
	time.Sleep(100 * time.Millisecond)
	if chat.ConnectCount() != connects {
		t.Errorf("Expected no reconnect after logout, connects went %d -> %d", connects, chat.ConnectCount())
	}

	// A manual Start is required and works.
	if err := sup.Start(); err != nil {
		t.Fatalf("Manual Start after logout failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready after manual restart")
}

func TestLoggedOutReleasesTransport(t *testing.T) {
	chat := transport.NewMemoryTransport()
	creds := &memCreds{}
	sup := New(chat, creds, fastBackoff())

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready state")

	chat.Drop(transport.ReasonLoggedOut)

	// The worker exits on its own; Stop never runs, so the worker itself
	// must close the transport.
	waitFor(t, time.Second, func() bool { return chat.CloseCount() >= 1 }, "transport closed after logout")
}

func TestExhaustedBudgetReleasesTransport(t *testing.T) {
	chat := transport.NewMemoryTransport()
	sup := New(chat, nil, BackoffConfig{
		Base:           time.Hour,
		Max:            time.Hour,
		RateLimitFloor: time.Hour,
		MaxAttempts:    2,
	})

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready state")

	// The hour-long backoff keeps reconnects from firing, so each reported
	// failure burns one attempt until the budget is gone.
	for i := 0; i < 3; i++ {
		sup.ReportFailure(transport.ReasonTimeout)
		attempts := i + 1
		waitFor(t, time.Second, func() bool { return sup.Snapshot().Attempt >= attempts }, "failure consumed an attempt")
	}

	waitFor(t, time.Second, func() bool { return chat.CloseCount() >= 1 }, "transport closed after budget exhausted")
}

func TestReconnectAfterTransientDrop(t *testing.T) {
	chat := transport.NewMemoryTransport()
	creds := &memCreds{}
	sup := New(chat, creds, fastBackoff())
	defer sup.Stop()

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "initial ready")

	chat.Drop(transport.ReasonNetworkError)

	waitFor(t, time.Second, func() bool {
		return sup.State() == StateReady && chat.ConnectCount() >= 2
	}, "reconnect after drop")

	// Credential survives transient drops.
	if creds.wasDeleted() {
		t.Error("Credential must not be deleted on a transient drop")
	}
	if snap := sup.Snapshot(); snap.Attempt != 0 {
		t.Errorf("Attempt counter should reset after recovery, got %d", snap.Attempt)
	}
}

func TestSendFailsFastWhenNotReady(t *testing.T) {
	chat := transport.NewMemoryTransport()
	sup := New(chat, nil, fastBackoff())

	err := sup.SendText(context.Background(), "+15550100", "hello")
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	err = sup.SendDocument(context.Background(), "+15550100", []byte("x"), "a.pdf", "")
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected for document, got %v", err)
	}
}

func TestReportFailureTriggersReconnect(t *testing.T) {
	chat := transport.NewMemoryTransport()
	sup := New(chat, nil, fastBackoff())
	defer sup.Stop()

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "initial ready")

	sup.ReportFailure(transport.ReasonTimeout)

	waitFor(t, time.Second, func() bool { return chat.ConnectCount() >= 2 }, "reconnect after reported failure")
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready after recovery")
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	chat := transport.NewMemoryTransport()
	sup := New(chat, nil, BackoffConfig{
		Base:           time.Hour,
		Max:            time.Hour,
		RateLimitFloor: time.Hour,
		MaxAttempts:    10,
	})

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready state")

	chat.Drop(transport.ReasonNetworkError)
	waitFor(t, time.Second, func() bool { return sup.State() == StateDisconnected }, "disconnected")

	// Stop must cancel the hour-long backoff timer promptly.
	done := make(chan struct{})
	go func() {
		sup.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the pending backoff timer")
	}
}

func TestSendTextDelivers(t *testing.T) {
	chat := transport.NewMemoryTransport()
	sup := New(chat, nil, fastBackoff())
	defer sup.Stop()

	if err := sup.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sup.State() == StateReady }, "ready state")

	if err := sup.SendText(context.Background(), "+15550100", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	texts := chat.SentTexts()
	if len(texts) != 1 || texts[0].Body != "hello" {
		t.Errorf("Expected one recorded send, got %v", texts)
	}
}
