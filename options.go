package courier

import (
	"time"

	"github.com/opd-ai/courier/health"
	"github.com/opd-ai/courier/otp"
	"github.com/opd-ai/courier/supervisor"
)

// Options contains configuration for creating a Courier instance.
type Options struct {
	// DataDir is where the encrypted session credential is persisted.
	// Empty disables credential persistence: every session starts from a
	// fresh pairing.
	DataDir string

	// CredentialPassphrase protects the credential blob at rest. Required
	// when DataDir is set.
	CredentialPassphrase []byte

	// OTP controls verification code shape and lifetime.
	OTP otp.Config

	// Backoff is the reconnect delay policy.
	Backoff supervisor.BackoffConfig

	// Health controls the liveness probe cadence.
	Health health.Config

	// MaxSendAttempts is how many delivery attempts a queued message gets
	// before it is dropped with a terminal failure.
	MaxSendAttempts int

	// SendTimeout bounds each individual send. A timeout is treated as a
	// connection-level failure, not a message-level one.
	SendTimeout time.Duration

	// AdminTarget is the recipient for best-effort admin order alerts.
	// Empty disables NotifyAdmin.
	AdminTarget string
}

// NewOptions returns Options populated with production defaults.
func NewOptions() *Options {
	return &Options{
		OTP:             otp.DefaultConfig(),
		Backoff:         supervisor.DefaultBackoffConfig(),
		Health:          health.DefaultConfig(),
		MaxSendAttempts: 3,
		SendTimeout:     10 * time.Second,
	}
}
