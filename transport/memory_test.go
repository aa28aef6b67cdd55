package transport

import (
	"context"
	"errors"
	"testing"
)

func drainEvents(m *MemoryTransport) []Event {
	var events []Event
	for {
		select {
		case ev := <-m.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestConnectResumesAndEmitsReady(t *testing.T) {
	m := NewMemoryTransport()

	if err := m.Connect(context.Background(), []byte("stored")); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	events := drainEvents(m)
	if len(events) != 2 {
		t.Fatalf("Expected connected+ready, got %d events", len(events))
	}
	if events[0].Type != EventConnected || events[1].Type != EventReady {
		t.Errorf("Unexpected event order: %v, %v", events[0].Type, events[1].Type)
	}
	if events[0].Credential == nil {
		t.Error("Connected event should carry the credential blob")
	}
}

func TestPairingFlow(t *testing.T) {
	m := NewMemoryTransport()
	m.RequirePairing("PAIR-1")

	if err := m.Connect(context.Background(), nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	events := drainEvents(m)
	if len(events) != 1 || events[0].Type != EventPairingCode {
		t.Fatalf("Expected a single pairing event, got %v", events)
	}
	if events[0].PairingCode != "PAIR-1" {
		t.Errorf("Expected PAIR-1, got %q", events[0].PairingCode)
	}

	m.CompletePairing()
	events = drainEvents(m)
	if len(events) != 2 || events[0].Type != EventConnected || events[1].Type != EventReady {
		t.Fatalf("Expected connected+ready after pairing, got %v", events)
	}
}

func TestSendRequiresConnection(t *testing.T) {
	m := NewMemoryTransport()

	err := m.SendText(context.Background(), "+15550100", "hello")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	if err := m.Connect(context.Background(), []byte("c")); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := m.SendText(context.Background(), "+15550100", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	texts := m.SentTexts()
	if len(texts) != 1 || texts[0].Body != "hello" {
		t.Errorf("Expected recorded send, got %v", texts)
	}
}

func TestDropDisconnects(t *testing.T) {
	m := NewMemoryTransport()
	if err := m.Connect(context.Background(), []byte("c")); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	drainEvents(m)

	m.Drop(ReasonNetworkError)

	events := drainEvents(m)
	if len(events) != 1 || events[0].Type != EventDisconnected {
		t.Fatalf("Expected a disconnect event, got %v", events)
	}
	if events[0].Reason != ReasonNetworkError {
		t.Errorf("Expected network_error reason, got %v", events[0].Reason)
	}

	if err := m.Ping(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping after drop should fail, got %v", err)
	}
}

func TestIsConnectionError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{NewSendError("send_text", "+1", ErrNotConnected), true},
		{NewSendError("send_text", "+1", ErrConnectionLost), true},
		{NewSendError("send_text", "+1", ErrRateLimited), true},
		{context.DeadlineExceeded, true},
		{NewSendError("send_text", "+1", ErrRejected), false},
		{errors.New("bad payload"), false},
	}

	for _, tc := range cases {
		if got := IsConnectionError(tc.err); got != tc.want {
			t.Errorf("IsConnectionError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestDisconnectReasonClassification(t *testing.T) {
	if !ReasonLoggedOut.RequiresPairing() {
		t.Error("logged_out should require pairing")
	}
	if ReasonNetworkError.RequiresPairing() {
		t.Error("network_error should not require pairing")
	}
	if !ReasonRateLimited.RateLimited() {
		t.Error("rate_limited should classify as rate limited")
	}
}
