package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeProvider is an interface for getting the current time, allowing a
// mock provider for deterministic expiry testing.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// VerifyStatus classifies the result of a verification attempt.
type VerifyStatus uint8

const (
	// VerifyOK means the supplied code matched and the session is consumed.
	VerifyOK VerifyStatus = iota
	// VerifyNotFound means no session exists for the recipient.
	VerifyNotFound
	// VerifyExpired means the session outlived its expiry window; it has
	// been deleted.
	VerifyExpired
	// VerifyMismatch means the supplied code did not match. After the
	// attempt limit is reached the session is deleted.
	VerifyMismatch
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyOK:
		return "ok"
	case VerifyNotFound:
		return "not_found"
	case VerifyExpired:
		return "expired"
	case VerifyMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// VerifyResult is the typed outcome of a Verify call.
type VerifyResult struct {
	Valid  bool
	Status VerifyStatus
}

// Config controls code shape and session lifetime.
type Config struct {
	// Digits is the code width. Values outside 4..8 are clamped.
	Digits int
	// TTL is the expiry window for an issued code.
	TTL time.Duration
	// MaxAttempts is the number of failed verifications that destroy a
	// session.
	MaxAttempts int
	// SweepInterval is how often the background sweep removes expired
	// sessions.
	SweepInterval time.Duration
}

// DefaultConfig returns the standard production configuration: 6-digit
// codes, a 10-minute expiry window, 3 attempts, a 5-minute sweep.
func DefaultConfig() Config {
	return Config{
		Digits:        6,
		TTL:           10 * time.Minute,
		MaxAttempts:   3,
		SweepInterval: 5 * time.Minute,
	}
}

// Session is the stored state for one outstanding code.
type Session struct {
	Recipient    string
	Code         string
	DisplayName  string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	AttemptsUsed int
}

// Store holds outstanding one-time codes keyed by recipient. A single
// mutex guards the map; expected load does not justify per-entry locks.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	config   Config
	time     TimeProvider

	running  bool
	stopChan chan struct{}
}

// NewStore creates a code store with the given configuration.
func NewStore(config Config) *Store {
	if config.Digits < 4 {
		config.Digits = 4
	}
	if config.Digits > 8 {
		config.Digits = 8
	}
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}

	return &Store{
		sessions: make(map[string]*Session),
		config:   config,
		time:     RealTimeProvider{},
		stopChan: make(chan struct{}),
	}
}

// SetTimeProvider replaces the clock, primarily for testing.
func (s *Store) SetTimeProvider(tp TimeProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tp != nil {
		s.time = tp
	}
}

// Issue generates a fresh code for the recipient, replacing any prior
// outstanding session, and returns the code for delivery.
func (s *Store) Issue(recipient, displayName string) (string, error) {
	code, err := generateCode(s.config.Digits)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	s.mu.Lock()
	now := s.time.Now()
	replaced := s.sessions[recipient] != nil
	s.sessions[recipient] = &Session{
		Recipient:   recipient,
		Code:        code,
		DisplayName: displayName,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.config.TTL),
	}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Store.Issue",
		"recipient": recipient,
		"replaced":  replaced,
		"expires":   s.config.TTL,
	}).Info("Issued verification code")

	return code, nil
}

// Verify checks a supplied code against the recipient's outstanding
// session. The session is consumed on success, destroyed after the third
// mismatch, and destroyed on expiry.
func (s *Store) Verify(recipient, supplied string) VerifyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[recipient]
	if !exists {
		return VerifyResult{Status: VerifyNotFound}
	}

	if s.time.Now().After(session.ExpiresAt) {
		delete(s.sessions, recipient)
		logrus.WithFields(logrus.Fields{
			"function":  "Store.Verify",
			"recipient": recipient,
		}).Info("Verification code expired")
		return VerifyResult{Status: VerifyExpired}
	}

	if supplied != session.Code {
		session.AttemptsUsed++
		if session.AttemptsUsed >= s.config.MaxAttempts {
			delete(s.sessions, recipient)
			logrus.WithFields(logrus.Fields{
				"function":  "Store.Verify",
				"recipient": recipient,
				"attempts":  session.AttemptsUsed,
			}).Warn("Verification attempt limit reached, session destroyed")
		}
		return VerifyResult{Status: VerifyMismatch}
	}

	delete(s.sessions, recipient)
	return VerifyResult{Valid: true, Status: VerifyOK}
}

// SweepExpired removes sessions past their expiry that were never
// verified, bounding memory growth. It returns the number removed.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.time.Now()
	removed := 0
	for recipient, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, recipient)
			removed++
		}
	}

	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Store.SweepExpired",
			"removed":  removed,
		}).Debug("Swept expired verification codes")
	}

	return removed
}

// Start begins the background sweep loop.
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.stopChan = make(chan struct{})

	go s.sweepLoop(s.stopChan)
}

// Stop halts the background sweep loop.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	close(s.stopChan)
}

// Outstanding returns the number of sessions currently held.
func (s *Store) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) sweepLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.SweepExpired()
		}
	}
}

// generateCode draws a uniform fixed-width numeric code.
func generateCode(digits int) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}
