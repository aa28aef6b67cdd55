package courier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/credential"
	"github.com/opd-ai/courier/health"
	"github.com/opd-ai/courier/otp"
	"github.com/opd-ai/courier/queue"
	"github.com/opd-ai/courier/supervisor"
	"github.com/opd-ai/courier/transport"
)

// Courier is the delivery coordinator: the single public façade over the
// connection supervisor, the health monitor, the OTP store and the
// delivery queue. Callers never touch the transport directly.
type Courier struct {
	options *Options

	creds   *credential.Store
	codes   *otp.Store
	pending *queue.Queue
	sup     *supervisor.Supervisor
	monitor *health.Monitor

	mu               sync.Mutex
	running          bool
	draining         bool
	stopChan         chan struct{}
	outcomeListeners []OutcomeListener
}

// New creates a Courier over the given transport. A nil options uses
// NewOptions defaults.
func New(t transport.Transport, options *Options) (*Courier, error) {
	if t == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if options == nil {
		options = NewOptions()
	}

	c := &Courier{
		options: options,
		codes:   otp.NewStore(options.OTP),
		pending: queue.New(options.MaxSendAttempts),
	}

	var creds supervisor.CredentialStore
	if options.DataDir != "" {
		store, err := credential.NewStore(options.DataDir, options.CredentialPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		c.creds = store
		creds = store
	}

	c.sup = supervisor.New(t, creds, options.Backoff)
	c.monitor = health.NewMonitor(c.sup, options.Health)

	c.sup.OnStateChange(c.handleStateChange)

	logrus.WithFields(logrus.Fields{
		"function":         "New",
		"credential_store": c.creds != nil,
		"admin_target":     options.AdminTarget != "",
	}).Info("Courier created")

	return c, nil
}

// OnDeliveryOutcome registers a listener for terminal outcomes of queued
// messages. Listeners must not block.
func (c *Courier) OnDeliveryOutcome(listener OutcomeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomeListeners = append(c.outcomeListeners, listener)
}

// OnPairingCode registers a listener for pairing code availability, used
// by the admin screen to display a re-authentication code.
func (c *Courier) OnPairingCode(listener supervisor.PairingListener) {
	c.sup.OnPairingCode(listener)
}

// Start launches the connection supervisor, the health monitor and the
// OTP sweep. It is idempotent.
func (c *Courier) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	c.codes.Start()
	if err := c.sup.Start(); err != nil {
		return fmt.Errorf("failed to start connection supervisor: %w", err)
	}
	c.monitor.Start()

	logrus.WithField("function", "Courier.Start").Info("Courier started")
	return nil
}

// Stop shuts everything down in reverse order. Queued messages are
// discarded; losing them across restarts is an accepted tradeoff.
func (c *Courier) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.monitor.Stop()
	err := c.sup.Stop()
	c.codes.Stop()

	// The credential store stays open: Start accepts a restart and needs
	// the derived key intact.

	logrus.WithFields(logrus.Fields{
		"function": "Courier.Stop",
		"queued":   c.pending.Len(),
	}).Info("Courier stopped")

	return err
}

// RequestOTP issues a verification code for the recipient and attempts to
// deliver it over the chat transport. The code is always generated and
// returned, even when the transport is down: the calling flow can fall
// back to an out-of-band channel, and verification is never blocked by
// transport unavailability.
func (c *Courier) RequestOTP(recipient, displayName string) (string, Outcome, error) {
	code, err := c.codes.Issue(recipient, displayName)
	if err != nil {
		return "", Outcome{}, fmt.Errorf("failed to issue verification code: %w", err)
	}

	body := c.otpMessage(displayName, code)
	outcome := c.deliver(queue.NewText(recipient, body))

	logrus.WithFields(logrus.Fields{
		"function":  "Courier.RequestOTP",
		"recipient": recipient,
		"outcome":   outcome.Status.String(),
	}).Info("Verification code requested")

	return code, outcome, nil
}

// VerifyOTP checks a supplied code for the recipient.
func (c *Courier) VerifyOTP(recipient, code string) otp.VerifyResult {
	return c.codes.Verify(recipient, code)
}

// SendText delivers a text notification, queueing it when the session is
// not ready.
func (c *Courier) SendText(target, body string) Outcome {
	return c.deliver(queue.NewText(target, body))
}

// SendDocument delivers a document notification, queueing it when the
// session is not ready.
func (c *Courier) SendDocument(target string, data []byte, filename, caption string) Outcome {
	return c.deliver(queue.NewDocument(target, data, filename, caption))
}

// NotifyAdmin sends a best-effort alert to the configured admin
// recipient. It reports ok=false when no admin target is configured.
func (c *Courier) NotifyAdmin(body string) (Outcome, bool) {
	if c.options.AdminTarget == "" {
		return Outcome{}, false
	}
	return c.deliver(queue.NewText(c.options.AdminTarget, body)), true
}

// ConnectionStatus is the admin-screen view of the subsystem.
type ConnectionStatus struct {
	State           supervisor.State
	RequiresPairing bool
	PairingCode     string
	QueuedMessages  int
	PendingCodes    int
}

// Status returns a point-in-time view of the connection and queues.
func (c *Courier) Status() ConnectionStatus {
	snap := c.sup.Snapshot()
	return ConnectionStatus{
		State:           snap.State,
		RequiresPairing: snap.RequiresPairing,
		PairingCode:     snap.PairingCode,
		QueuedMessages:  c.pending.Len(),
		PendingCodes:    c.codes.Outstanding(),
	}
}

// deliver applies the immediate-or-enqueue policy for one message.
func (c *Courier) deliver(m *queue.Message) Outcome {
	if c.sup.State() != supervisor.StateReady {
		c.pending.Enqueue(m)
		// The session may have become Ready between the check and the
		// enqueue; without a kick the message would wait for the next
		// transition.
		c.kickDrain()
		return Outcome{MessageID: m.ID, Target: m.Target, Kind: m.Kind, Status: StatusQueued}
	}

	err := c.sendNow(m)
	if err == nil {
		return Outcome{MessageID: m.ID, Target: m.Target, Kind: m.Kind, Status: StatusDelivered}
	}

	if transport.IsConnectionError(err) {
		// The session is unusable; this is the supervisor's problem, not
		// the message's. Keep the message and let the drain retry it.
		c.sup.ReportFailure(classifyConnectionError(err))
		c.pending.Enqueue(m)
		return Outcome{MessageID: m.ID, Target: m.Target, Kind: m.Kind, Status: StatusQueued}
	}

	if c.pending.Requeue(m) {
		// A healthy session never transitions into Ready again, so the
		// retry must be driven from here or the message would be stuck
		// with neither a delivery nor a terminal outcome.
		c.kickDrain()
		return Outcome{MessageID: m.ID, Target: m.Target, Kind: m.Kind, Status: StatusQueued}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Courier.deliver",
		"id":       m.ID,
		"target":   m.Target,
		"error":    err.Error(),
	}).Error("Message dropped after exhausting attempts")

	return Outcome{MessageID: m.ID, Target: m.Target, Kind: m.Kind, Status: StatusFailed, Err: err}
}

// sendNow performs one bounded send attempt through the supervisor.
func (c *Courier) sendNow(m *queue.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.options.SendTimeout)
	defer cancel()

	switch m.Kind {
	case queue.KindDocument:
		return c.sup.SendDocument(ctx, m.Target, m.Document, m.Filename, m.Caption)
	default:
		return c.sup.SendText(ctx, m.Target, m.Body)
	}
}

// handleStateChange reacts to supervisor transitions: every transition is
// activity for the health monitor, and every transition into Ready starts
// a drain.
func (c *Courier) handleStateChange(snap supervisor.Snapshot) {
	c.monitor.NoteActivity()

	if snap.State == supervisor.StateReady {
		go c.drain()
	}
}

// kickDrain starts a drain when the session is already Ready, covering
// messages queued while no Ready transition is forthcoming.
func (c *Courier) kickDrain() {
	if c.sup.State() == supervisor.StateReady {
		go c.drain()
	}
}

// drain sends queued messages in FIFO order, one at a time. A single
// authenticated session cannot safely interleave concurrent sends, so
// there is no parallel fan-out, and only one drain runs at a time.
func (c *Courier) drain() {
	c.mu.Lock()
	if c.draining || !c.running {
		c.mu.Unlock()
		return
	}
	c.draining = true
	stop := c.stopChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.draining = false
		c.mu.Unlock()
	}()

	drained := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if c.sup.State() != supervisor.StateReady {
			return
		}

		m, ok := c.pending.Dequeue()
		if !ok {
			if drained > 0 {
				logrus.WithFields(logrus.Fields{
					"function": "Courier.drain",
					"drained":  drained,
				}).Info("Delivery queue drained")
			}
			return
		}

		err := c.sendNow(m)
		if err == nil {
			drained++
			c.emitOutcome(Outcome{MessageID: m.ID, Target: m.Target, Kind: m.Kind, Status: StatusDelivered})
			continue
		}

		if transport.IsConnectionError(err) {
			// Pause immediately: the attempt does not count against the
			// message, and the supervisor owns the reconnect.
			c.pending.PushFront(m)
			c.sup.ReportFailure(classifyConnectionError(err))
			return
		}

		if !c.pending.Requeue(m) {
			c.emitOutcome(Outcome{MessageID: m.ID, Target: m.Target, Kind: m.Kind, Status: StatusFailed, Err: err})
		}
	}
}

func (c *Courier) emitOutcome(outcome Outcome) {
	c.mu.Lock()
	listeners := make([]OutcomeListener, len(c.outcomeListeners))
	copy(listeners, c.outcomeListeners)
	c.mu.Unlock()

	if outcome.Status == StatusFailed {
		logrus.WithFields(logrus.Fields{
			"function": "Courier.emitOutcome",
			"id":       outcome.MessageID,
			"target":   outcome.Target,
			"error":    fmt.Sprintf("%v", outcome.Err),
		}).Error("Terminal delivery failure")
	}

	for _, l := range listeners {
		l(outcome)
	}
}

func (c *Courier) otpMessage(displayName, code string) string {
	minutes := int(c.options.OTP.TTL.Minutes())
	if minutes <= 0 {
		minutes = 10
	}
	if displayName == "" {
		return fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)
	}
	return fmt.Sprintf("Hi %s, your verification code is %s. It expires in %d minutes.", displayName, code, minutes)
}

func classifyConnectionError(err error) transport.DisconnectReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return transport.ReasonTimeout
	case errors.Is(err, transport.ErrRateLimited):
		return transport.ReasonRateLimited
	default:
		return transport.ReasonNetworkError
	}
}
