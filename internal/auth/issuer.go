package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tiretrack/server/internal/model"
	"github.com/tiretrack/server/internal/repo"
	"github.com/tiretrack/server/internal/sms"
)

// Issued describes a code that was stored and handed to the SMS sender.
type Issued struct {
	PhoneNumber string
	ExpiresAt   time.Time
	// DevCode is the plaintext code, set only in dev mode.
	DevCode string
}

// Issuer generates one-time codes, enforces the resend cooldown and
// delivers codes by SMS.
type Issuer struct {
	otps     repo.OtpRepo
	sender   sms.Sender
	policy   Policy
	now      func() time.Time
	generate func(length int) (string, error)
}

// NewIssuer creates a new OTP issuer
func NewIssuer(otps repo.OtpRepo, sender sms.Sender, policy Policy) *Issuer {
	return &Issuer{
		otps:     otps,
		sender:   sender,
		policy:   policy,
		now:      time.Now,
		generate: generateCode,
	}
}

// Request issues a fresh code for rawPhone unless the previous one was sent
// less than the cooldown ago. Errors are ErrInvalidInput, *CooldownError,
// *DeliveryError or a storage error.
func (i *Issuer) Request(ctx context.Context, rawPhone string) (*Issued, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	now := i.now()

	// Cheap check first so no code is generated while the cooldown runs.
	// Issue below repeats it atomically.
	current, err := i.otps.Get(ctx, phone)
	switch {
	case err == nil:
		if remaining := cooldownRemaining(current.LastSentAt, i.policy.Cooldown, now); !current.Expired(now) && remaining > 0 {
			return nil, &CooldownError{Remaining: remaining}
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return nil, fmt.Errorf("load otp record: %w", err)
	}

	code := devCode(i.policy.CodeLength)
	if !i.policy.DevMode {
		code, err = i.generate(i.policy.CodeLength)
		if err != nil {
			return nil, err
		}
	}

	rec := model.OtpRecord{
		ID:           uuid.New(),
		PhoneNumber:  phone,
		CodeHash:     hashCode(phone, code, i.policy.Salt),
		CreatedAt:    now,
		ExpiresAt:    now.Add(i.policy.CodeTTL),
		LastSentAt:   now,
		AttemptsUsed: 0,
		MaxAttempts:  i.policy.MaxAttempts,
	}

	current, issued, err := i.otps.Issue(ctx, rec, i.policy.Cooldown, now)
	if err != nil {
		return nil, fmt.Errorf("store otp record: %w", err)
	}
	if !issued {
		return nil, &CooldownError{Remaining: cooldownRemaining(current.LastSentAt, i.policy.Cooldown, now)}
	}

	msg := sms.OTPMessage(i.policy.Locale, code, i.policy.CodeTTL)
	if err := i.sender.Send(ctx, E164(phone), msg); err != nil {
		log.Printf("Phone %s: SMS delivery failed: %v", MaskPhone(phone), err)
		return nil, &DeliveryError{Err: err}
	}

	out := &Issued{PhoneNumber: phone, ExpiresAt: rec.ExpiresAt}
	if i.policy.DevMode {
		out.DevCode = code
	}
	return out, nil
}
