package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tiretrack/server/internal/model"
	"github.com/tiretrack/server/internal/repo"
)

const maxDisplayNameLen = 100

// RequestOTPResult is the wire response of request_otp.
type RequestOTPResult struct {
	Success         bool   `json:"success"`
	CooldownSeconds int    `json:"cooldown_seconds,omitempty"`
	Error           string `json:"error,omitempty"`
	DevOTP          string `json:"dev_otp,omitempty"`
}

// VerifyOTPResult is the wire response of verify_otp.
type VerifyOTPResult struct {
	Success           bool   `json:"success"`
	SessionToken      string `json:"session_token,omitempty"`
	Error             string `json:"error,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`

	ExpiresAt time.Time `json:"-"`
}

// LogoutResult is the wire response of logout.
type LogoutResult struct {
	Success bool `json:"success"`
}

// AccessTokenResult is the wire response of the access token exchange.
type AccessTokenResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Principal is an authenticated caller.
type Principal struct {
	User    model.User
	Session model.SessionRecord
}

// Gateway is the request/response surface of the auth core. It delegates to
// the issuer, verifier and session manager and translates their results into
// wire responses. The returned error classifies failures for the transport.
type Gateway struct {
	issuer   *Issuer
	verifier *Verifier
	sessions *SessionManager
	tokens   *JWTService
	users    repo.UserRepo
	observer Observer
}

// NewGateway creates a new auth gateway. observer may be nil.
func NewGateway(
	issuer *Issuer,
	verifier *Verifier,
	sessions *SessionManager,
	tokens *JWTService,
	users repo.UserRepo,
	observer Observer,
) *Gateway {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Gateway{
		issuer:   issuer,
		verifier: verifier,
		sessions: sessions,
		tokens:   tokens,
		users:    users,
		observer: observer,
	}
}

// RequestOTP issues a code for phone.
func (g *Gateway) RequestOTP(ctx context.Context, phone string) (RequestOTPResult, error) {
	issued, err := g.issuer.Request(ctx, phone)
	if err != nil {
		var cooldown *CooldownError
		var delivery *DeliveryError
		switch {
		case errors.Is(err, ErrInvalidInput):
			g.observer.OTPRequested(OutcomeInvalidInput)
			return RequestOTPResult{Error: err.Error()}, err
		case errors.As(err, &cooldown):
			g.observer.OTPRequested(OutcomeCooldown)
			return RequestOTPResult{CooldownSeconds: cooldown.Seconds(), Error: "please wait before requesting a new code"}, err
		case errors.As(err, &delivery):
			g.observer.OTPRequested(OutcomeDeliveryFailed)
			return RequestOTPResult{Error: delivery.Error()}, err
		default:
			g.observer.OTPRequested(OutcomeError)
			log.Printf("Phone %s: failed to request OTP: %v", maskRaw(phone), err)
			return RequestOTPResult{Error: "failed to request OTP"}, err
		}
	}

	g.observer.OTPRequested(OutcomeSent)
	return RequestOTPResult{Success: true, DevOTP: issued.DevCode}, nil
}

// VerifyOTP checks code and opens a session on success.
func (g *Gateway) VerifyOTP(ctx context.Context, phone, code string) (VerifyOTPResult, error) {
	login, err := g.verifier.Verify(ctx, phone, code)
	if err != nil {
		var codeErr *CodeError
		switch {
		case errors.Is(err, ErrInvalidInput):
			g.observer.OTPVerified(OutcomeInvalidInput)
			return VerifyOTPResult{Error: err.Error()}, err
		case errors.As(err, &codeErr):
			g.observer.OTPVerified(string(codeErr.Reason))
			log.Printf("Phone %s: code rejected (%s)", maskRaw(phone), codeErr.Reason)
			res := VerifyOTPResult{Error: ErrInvalidCode.Error()}
			if codeErr.AttemptsRemaining >= 0 {
				remaining := codeErr.AttemptsRemaining
				res.AttemptsRemaining = &remaining
			}
			return res, err
		default:
			g.observer.OTPVerified(OutcomeError)
			log.Printf("Phone %s: failed to verify OTP: %v", maskRaw(phone), err)
			return VerifyOTPResult{Error: "failed to verify OTP"}, err
		}
	}

	g.observer.OTPVerified(OutcomeSuccess)
	g.observer.SessionCreated()
	return VerifyOTPResult{
		Success:      true,
		SessionToken: login.Token,
		ExpiresAt:    login.Session.ExpiresAt,
	}, nil
}

// Logout destroys the session behind each token. A token is either an opaque
// session token or an access token. Repeated or unknown tokens succeed.
func (g *Gateway) Logout(ctx context.Context, tokens ...string) (LogoutResult, error) {
	for _, token := range tokens {
		removed, err := g.destroy(ctx, token)
		if err != nil {
			return LogoutResult{}, err
		}
		if removed {
			g.observer.SessionDestroyed()
		}
	}
	return LogoutResult{Success: true}, nil
}

func (g *Gateway) destroy(ctx context.Context, token string) (bool, error) {
	if !looksLikeJWT(token) {
		return g.sessions.Destroy(ctx, token)
	}
	claims, err := g.tokens.SessionClaims(token)
	if err != nil {
		return false, nil
	}
	return g.sessions.DestroyHash(ctx, claims.SessionID)
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// ResolveSession returns the caller behind an opaque session token, or
// ErrSessionInvalid.
func (g *Gateway) ResolveSession(ctx context.Context, token string) (*Principal, error) {
	s, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return g.principal(ctx, s)
}

// ResolveBearer accepts either an opaque session token or an access token.
// Access tokens are only honoured while their session is live.
func (g *Gateway) ResolveBearer(ctx context.Context, token string) (*Principal, error) {
	if !looksLikeJWT(token) {
		return g.ResolveSession(ctx, token)
	}

	claims, err := g.tokens.VerifyToken(token)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	s, err := g.sessions.ResolveHash(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if s != nil && s.UserID != claims.UserID {
		return nil, ErrSessionInvalid
	}
	return g.principal(ctx, s)
}

func (g *Gateway) principal(ctx context.Context, s *model.SessionRecord) (*Principal, error) {
	if s == nil {
		return nil, ErrSessionInvalid
	}
	user, err := g.users.GetByID(ctx, s.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	return &Principal{User: user, Session: *s}, nil
}

// IssueAccessToken mints a short-lived JWT bound to the caller's session.
func (g *Gateway) IssueAccessToken(p *Principal) (AccessTokenResult, error) {
	token, _, err := g.tokens.SignAccessToken(p.User.ID, p.User.PhoneNumber, p.Session.TokenHash)
	if err != nil {
		return AccessTokenResult{}, err
	}
	return AccessTokenResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(g.tokens.TTL().Seconds()),
	}, nil
}

// UpdateDisplayName sets or clears (nil or blank) the user's display name.
func (g *Gateway) UpdateDisplayName(ctx context.Context, userID uuid.UUID, name *string) (model.User, error) {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if utf8.RuneCountInString(trimmed) > maxDisplayNameLen {
			return model.User{}, fmt.Errorf("%w: display_name is longer than %d characters", ErrInvalidInput, maxDisplayNameLen)
		}
		name = &trimmed
		if trimmed == "" {
			name = nil
		}
	}
	user, err := g.users.UpdateDisplayName(ctx, userID, name)
	if err != nil {
		return model.User{}, fmt.Errorf("update display name: %w", err)
	}
	return user, nil
}

// maskRaw masks unvalidated input the same way as a canonical phone.
func maskRaw(raw string) string {
	if phone, err := NormalizePhone(raw); err == nil {
		return MaskPhone(phone)
	}
	return MaskPhone(strings.TrimSpace(raw))
}
