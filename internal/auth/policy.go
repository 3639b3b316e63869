package auth

import (
	"time"

	"github.com/tiretrack/server/internal/config"
)

// Policy holds the OTP and session limits shared by the auth components.
type Policy struct {
	CodeLength  int
	CodeTTL     time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	SessionTTL  time.Duration
	Salt        string
	Locale      string
	// DevMode issues a fixed code and returns it to the caller.
	DevMode bool
}

// PolicyFromConfig builds a Policy from the loaded configuration
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		CodeLength:  cfg.OTP.CodeLength,
		CodeTTL:     cfg.OTP.TTL,
		Cooldown:    cfg.OTP.Cooldown,
		MaxAttempts: cfg.OTP.MaxAttempts,
		SessionTTL:  cfg.Session.TTL,
		Salt:        cfg.OTPSalt,
		Locale:      cfg.SMS.Locale,
		DevMode:     cfg.DevMode,
	}
}

// cooldownRemaining is how long a new code is still blocked for, given the
// last send time. Zero or negative means a new code may be issued.
func cooldownRemaining(lastSentAt time.Time, cooldown time.Duration, now time.Time) time.Duration {
	return lastSentAt.Add(cooldown).Sub(now)
}
