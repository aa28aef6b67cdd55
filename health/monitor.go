package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/supervisor"
	"github.com/opd-ai/courier/transport"
)

// Target is the slice of the connection supervisor the monitor needs. The
// monitor only reads snapshots and signals; it never flips state directly.
type Target interface {
	Snapshot() supervisor.Snapshot
	Ping(ctx context.Context) error
	ReportFailure(reason transport.DisconnectReason)
	Restart() error
}

// Config controls probe cadence.
type Config struct {
	// Interval is the time between probes while the session is Ready.
	Interval time.Duration
	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration
	// StallMultiplier is how many silent intervals trigger a forced
	// supervisor restart.
	StallMultiplier int
}

// DefaultConfig returns the standard cadence: a 30s probe interval, 5s
// probe timeout, restart after 3 silent intervals.
func DefaultConfig() Config {
	return Config{
		Interval:        30 * time.Second,
		ProbeTimeout:    5 * time.Second,
		StallMultiplier: 3,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.StallMultiplier <= 0 {
		c.StallMultiplier = 3
	}
	return c
}

// Monitor periodically verifies that a supposedly ready session actually
// responds.
type Monitor struct {
	mu     sync.Mutex
	target Target
	config Config

	lastHeartbeatAt time.Time
	lastActivityAt  time.Time

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor for the given supervisor.
func NewMonitor(target Target, config Config) *Monitor {
	return &Monitor{
		target: target,
		config: config.withDefaults(),
	}
}

// Start begins the probe loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.running = true
	m.stopChan = make(chan struct{})
	now := time.Now()
	m.lastHeartbeatAt = now
	m.lastActivityAt = now

	m.wg.Add(1)
	go m.probeLoop(m.stopChan)

	logrus.WithFields(logrus.Fields{
		"function": "Monitor.Start",
		"interval": m.config.Interval,
	}).Info("Health monitor started")
}

// Stop halts the probe loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
}

// NoteActivity records externally observed transport activity, such as a
// state transition or an inbound event. Activity defers the stall
// restart.
func (m *Monitor) NoteActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivityAt = time.Now()
}

// LastHeartbeat returns when the most recent probe succeeded.
func (m *Monitor) LastHeartbeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeartbeatAt
}

func (m *Monitor) probeLoop(stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	snap := m.target.Snapshot()
	if snap.State != supervisor.StateReady {
		// The supervisor already knows the session is down; the stall
		// clock restarts when traffic resumes.
		m.NoteActivity()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.ProbeTimeout)
	err := m.target.Ping(ctx)
	cancel()

	now := time.Now()

	if err == nil {
		m.mu.Lock()
		m.lastHeartbeatAt = now
		m.lastActivityAt = now
		m.mu.Unlock()
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Monitor.tick",
		"error":    err.Error(),
	}).Warn("Liveness probe failed")

	// Signal the supervisor instead of flipping state here.
	m.target.ReportFailure(transport.ReasonTimeout)

	m.mu.Lock()
	stalled := now.Sub(m.lastActivityAt) >= time.Duration(m.config.StallMultiplier)*m.config.Interval
	if stalled {
		m.lastActivityAt = now
	}
	m.mu.Unlock()

	if stalled {
		logrus.WithField("function", "Monitor.tick").Error("No activity observed, forcing supervisor restart")
		if err := m.target.Restart(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Monitor.tick",
				"error":    err.Error(),
			}).Error("Forced restart failed")
		}
	}
}
