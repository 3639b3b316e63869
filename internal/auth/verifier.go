package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tiretrack/server/internal/model"
	"github.com/tiretrack/server/internal/repo"
)

// Login is the result of a successful verification.
type Login struct {
	Token   string
	Session model.SessionRecord
	User    model.User
}

// Verifier checks submitted codes against the stored OtpRecord and opens a
// session when one matches.
type Verifier struct {
	otps     repo.OtpRepo
	users    repo.UserRepo
	sessions *SessionManager
	policy   Policy
	now      func() time.Time
}

// NewVerifier creates a new OTP verifier
func NewVerifier(otps repo.OtpRepo, users repo.UserRepo, sessions *SessionManager, policy Policy) *Verifier {
	return &Verifier{
		otps:     otps,
		users:    users,
		sessions: sessions,
		policy:   policy,
		now:      time.Now,
	}
}

// Verify checks code for rawPhone. Every rejected code is a *CodeError; the
// record is deleted once it is used, expired or out of attempts.
func (v *Verifier) Verify(ctx context.Context, rawPhone, code string) (*Login, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if !validCode(code, v.policy.CodeLength) {
		return nil, fmt.Errorf("%w: code must be %d digits", ErrInvalidInput, v.policy.CodeLength)
	}

	now := v.now()

	rec, err := v.otps.Get(ctx, phone)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, codeError(ReasonNotFound, -1)
	}
	if err != nil {
		return nil, fmt.Errorf("load otp record: %w", err)
	}

	if rec.Expired(now) {
		if err := v.otps.Delete(ctx, phone, rec.ID); err != nil {
			return nil, fmt.Errorf("delete expired otp record: %w", err)
		}
		return nil, codeError(ReasonExpired, -1)
	}

	if rec.Exhausted() {
		if err := v.otps.Delete(ctx, phone, rec.ID); err != nil {
			return nil, fmt.Errorf("delete exhausted otp record: %w", err)
		}
		return nil, codeError(ReasonExhausted, 0)
	}

	if !codeMatches(rec.CodeHash, hashCode(phone, code, v.policy.Salt)) {
		used, err := v.otps.IncrementAttempts(ctx, phone, rec.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, codeError(ReasonMismatch, -1)
		}
		if err != nil {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}
		remaining := rec.MaxAttempts - used
		if remaining < 0 {
			remaining = 0
		}
		return nil, codeError(ReasonMismatch, remaining)
	}

	if err := v.otps.Consume(ctx, phone, rec.ID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, codeError(ReasonNotFound, -1)
		}
		return nil, fmt.Errorf("consume otp record: %w", err)
	}

	user, err := v.users.GetOrCreateByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	token, session, err := v.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Login{Token: token, Session: session, User: user}, nil
}
