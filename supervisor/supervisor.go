package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/transport"
)

// CredentialStore persists the opaque resumable session credential. The
// supervisor reads it once per Start, writes it on every successful
// authentication, and deletes it only on an explicit logout.
type CredentialStore interface {
	Load() ([]byte, error)
	Save(blob []byte) error
	Delete() error
}

// StateListener receives a snapshot after every state transition.
type StateListener func(Snapshot)

// PairingListener receives the pairing code when human re-pairing is
// required.
type PairingListener func(code string)

// Supervisor owns the transport session lifecycle. Exactly one worker
// goroutine drives the state machine; Start is guarded so two concurrent
// callers can never produce two live sessions.
type Supervisor struct {
	mu        sync.Mutex
	transport transport.Transport
	creds     CredentialStore
	backoff   BackoffConfig

	state           State
	pairingCode     string
	requiresPairing bool
	attempt         int
	lastDisconnect  transport.DisconnectReason
	credential      []byte

	running  bool
	stopChan chan struct{}
	signals  chan transport.DisconnectReason
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// sendMu serializes sends: a single authenticated session cannot
	// safely interleave concurrent traffic.
	sendMu sync.Mutex

	stateListeners   []StateListener
	pairingListeners []PairingListener
}

// New creates a supervisor for the given transport. creds may be nil, in
// which case sessions always start from a fresh pairing.
func New(t transport.Transport, creds CredentialStore, backoff BackoffConfig) *Supervisor {
	return &Supervisor{
		transport: t,
		creds:     creds,
		backoff:   backoff.withDefaults(),
		state:     StateDisconnected,
	}
}

// OnStateChange registers a listener for state transitions. Listeners are
// invoked synchronously from the supervisor worker and must not block.
func (s *Supervisor) OnStateChange(listener StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateListeners = append(s.stateListeners, listener)
}

// OnPairingCode registers a listener for pairing code availability.
func (s *Supervisor) OnPairingCode(listener PairingListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairingListeners = append(s.pairingListeners, listener)
}

// Start launches the connection worker. It is idempotent: calling Start
// while a worker is already live is a no-op.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logrus.WithField("function", "Supervisor.Start").Debug("Already running, ignoring")
		return nil
	}

	s.running = true
	s.requiresPairing = false
	s.attempt = 0
	s.pairingCode = ""
	s.stopChan = make(chan struct{})
	s.signals = make(chan transport.DisconnectReason, 4)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	stopChan := s.stopChan
	s.mu.Unlock()

	// Credential is read once per start-up.
	var cred []byte
	if s.creds != nil {
		loaded, err := s.creds.Load()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Supervisor.Start",
				"error":    err.Error(),
			}).Warn("Failed to load credential, starting without one")
		} else {
			cred = loaded
		}
	}

	s.mu.Lock()
	s.credential = cred
	s.mu.Unlock()

	s.setState(StateConnecting)

	logrus.WithFields(logrus.Fields{
		"function":       "Supervisor.Start",
		"has_credential": cred != nil,
	}).Info("Connection supervisor starting")

	s.wg.Add(1)
	go s.run(ctx, stopChan)
	return nil
}

// Stop gracefully tears down the session, cancelling any pending backoff
// timer and in-flight connect attempt. It is safe to call when stopped.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.state = StateClosing
	s.pairingCode = ""
	stopChan := s.stopChan
	cancel := s.cancel
	s.mu.Unlock()

	s.notifyState()

	close(stopChan)
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	err := s.transport.Close()

	s.setState(StateDisconnected)

	logrus.WithField("function", "Supervisor.Stop").Info("Connection supervisor stopped")
	return err
}

// Restart performs a full Stop/Start cycle. The health monitor uses this
// to recover from a silently stalled session.
func (s *Supervisor) Restart() error {
	if err := s.Stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Supervisor.Restart",
			"error":    err.Error(),
		}).Warn("Transport close failed during restart")
	}
	return s.Start()
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a read-only view of the supervisor's state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:           s.state,
		PairingCode:     s.pairingCode,
		RequiresPairing: s.requiresPairing,
		Attempt:         s.attempt,
		LastDisconnect:  s.lastDisconnect,
	}
}

// SendText delivers a text message over the active session. It fails fast
// with transport.ErrNotConnected while the state is not Ready; it never
// waits for a reconnect.
func (s *Supervisor) SendText(ctx context.Context, target, body string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.State() != StateReady {
		return transport.NewSendError("send_text", target, transport.ErrNotConnected)
	}
	return s.transport.SendText(ctx, target, body)
}

// SendDocument delivers a document over the active session, with the same
// fail-fast contract as SendText.
func (s *Supervisor) SendDocument(ctx context.Context, target string, data []byte, filename, caption string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.State() != StateReady {
		return transport.NewSendError("send_document", target, transport.ErrNotConnected)
	}
	return s.transport.SendDocument(ctx, target, data, filename, caption)
}

// Ping issues a liveness probe over the active session.
func (s *Supervisor) Ping(ctx context.Context) error {
	if s.State() != StateReady {
		return transport.ErrNotConnected
	}
	return s.transport.Ping(ctx)
}

// ReportFailure asks the supervisor to treat an externally observed
// failure exactly like a transport-reported disconnect. The health monitor
// uses this so the state machine remains the single authority.
func (s *Supervisor) ReportFailure(reason transport.DisconnectReason) {
	s.mu.Lock()
	running := s.running
	signals := s.signals
	s.mu.Unlock()

	if !running || signals == nil {
		return
	}

	select {
	case signals <- reason:
	default:
		// A disconnect is already queued; one is enough.
	}
}

// run is the single worker goroutine driving the state machine.
func (s *Supervisor) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	s.connect(ctx)

	events := s.transport.Events()

	var retryTimer *time.Timer
	var retryC <-chan time.Time
	clearRetry := func() {
		if retryTimer != nil {
			retryTimer.Stop()
			retryTimer = nil
			retryC = nil
		}
	}
	defer clearRetry()

	for {
		select {
		case <-stop:
			return

		case ev, ok := <-events:
			if !ok {
				logrus.WithField("function", "Supervisor.run").Error("Transport event stream closed")
				s.giveUp()
				return
			}
			if terminal := s.handleEvent(ev, &retryTimer, &retryC); terminal {
				return
			}

		case reason := <-s.signals:
			if terminal := s.handleDrop(reason, &retryTimer, &retryC); terminal {
				return
			}

		case <-retryC:
			clearRetry()
			s.setState(StateConnecting)
			s.connect(ctx)
		}
	}
}

// connect initiates a session attempt. Failures are fed back through the
// signal channel so the run loop handles them like any other disconnect.
func (s *Supervisor) connect(ctx context.Context) {
	s.mu.Lock()
	cred := s.credential
	s.mu.Unlock()

	if err := s.transport.Connect(ctx, cred); err != nil {
		if ctx.Err() != nil {
			return
		}

		reason := transport.ReasonNetworkError
		switch {
		case errors.Is(err, transport.ErrRateLimited):
			reason = transport.ReasonRateLimited
		case errors.Is(err, transport.ErrAuthRequired):
			reason = transport.ReasonLoggedOut
		}

		logrus.WithFields(logrus.Fields{
			"function": "Supervisor.connect",
			"error":    err.Error(),
			"reason":   reason.String(),
		}).Warn("Connect attempt failed")

		s.ReportFailure(reason)
	}
}

func (s *Supervisor) handleEvent(ev transport.Event, retryTimer **time.Timer, retryC *<-chan time.Time) bool {
	switch ev.Type {
	case transport.EventPairingCode:
		s.mu.Lock()
		s.state = StateAwaitingPairing
		s.pairingCode = ev.PairingCode
		listeners := make([]PairingListener, len(s.pairingListeners))
		copy(listeners, s.pairingListeners)
		s.mu.Unlock()

		logrus.WithField("function", "Supervisor.handleEvent").Info("Pairing code available")

		s.notifyState()
		for _, l := range listeners {
			l(ev.PairingCode)
		}

	case transport.EventConnected:
		s.mu.Lock()
		s.state = StateAuthenticated
		// Pairing material is transient: cleared the instant the session
		// authenticates.
		s.pairingCode = ""
		s.requiresPairing = false
		if ev.Credential != nil {
			s.credential = ev.Credential
		}
		s.mu.Unlock()

		s.notifyState()

		if ev.Credential != nil && s.creds != nil {
			if err := s.creds.Save(ev.Credential); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Supervisor.handleEvent",
					"error":    err.Error(),
				}).Error("Failed to persist credential")
			}
		}

	case transport.EventReady:
		s.mu.Lock()
		s.state = StateReady
		s.attempt = 0
		s.mu.Unlock()

		logrus.WithField("function", "Supervisor.handleEvent").Info("Session ready for traffic")
		s.notifyState()

	case transport.EventDisconnected:
		return s.handleDrop(ev.Reason, retryTimer, retryC)
	}

	return false
}

// handleDrop applies the disconnect policy. It returns true when the drop
// is terminal and the worker must exit.
func (s *Supervisor) handleDrop(reason transport.DisconnectReason, retryTimer **time.Timer, retryC *<-chan time.Time) bool {
	if *retryTimer != nil {
		(*retryTimer).Stop()
		*retryTimer = nil
		*retryC = nil
	}

	s.mu.Lock()
	s.lastDisconnect = reason
	s.pairingCode = ""

	if reason.RequiresPairing() {
		s.state = StateDisconnected
		s.requiresPairing = true
		s.running = false
		s.credential = nil
		s.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "Supervisor.handleDrop",
			"reason":   reason.String(),
		}).Warn("Credential invalidated, manual re-pairing required")

		if s.creds != nil {
			if err := s.creds.Delete(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Supervisor.handleDrop",
					"error":    err.Error(),
				}).Error("Failed to clear credential")
			}
		}

		s.notifyState()
		s.terminate()
		return true
	}

	s.attempt++
	attempt := s.attempt

	if attempt > s.backoff.MaxAttempts {
		s.state = StateDisconnected
		s.running = false
		s.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "Supervisor.handleDrop",
			"reason":   reason.String(),
			"attempts": attempt - 1,
		}).Error("Reconnect budget exhausted, giving up")

		s.notifyState()
		s.terminate()
		return true
	}

	delay := s.backoff.Jittered(attempt-1, reason)
	s.state = StateDisconnected
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Supervisor.handleDrop",
		"reason":   reason.String(),
		"attempt":  attempt,
		"delay":    delay,
	}).Info("Session dropped, reconnect scheduled")

	s.notifyState()

	*retryTimer = time.NewTimer(delay)
	*retryC = (*retryTimer).C
	return false
}

// giveUp marks the supervisor stopped after an unrecoverable worker error.
func (s *Supervisor) giveUp() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.running = false
	s.mu.Unlock()
	s.notifyState()
	s.terminate()
}

// terminate releases the session resources when the worker exits on its
// own. Stop never runs for these exits, so the context and transport must
// be released here.
func (s *Supervisor) terminate() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := s.transport.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Supervisor.terminate",
			"error":    err.Error(),
		}).Warn("Transport close failed")
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notifyState()
}

func (s *Supervisor) notifyState() {
	s.mu.Lock()
	snap := Snapshot{
		State:           s.state,
		PairingCode:     s.pairingCode,
		RequiresPairing: s.requiresPairing,
		Attempt:         s.attempt,
		LastDisconnect:  s.lastDisconnect,
	}
	listeners := make([]StateListener, len(s.stateListeners))
	copy(listeners, s.stateListeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}
