package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidInput marks a malformed phone number or code. Nothing was stored.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited marks a request inside the resend cooldown. See CooldownError.
	ErrRateLimited = errors.New("rate limited")
	// ErrDeliveryFailed marks an SMS provider failure. See DeliveryError.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrInvalidCode covers wrong, expired, exhausted and unknown codes alike. See CodeError.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrSessionInvalid means the caller is not authenticated.
	ErrSessionInvalid = errors.New("session invalid")
)

// CooldownError is returned when an OTP was sent too recently.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp resend cooldown active: retry in %ds", e.Seconds())
}

func (e *CooldownError) Is(target error) bool { return target == ErrRateLimited }

// Seconds returns the remaining cooldown rounded up; never less than 1.
func (e *CooldownError) Seconds() int {
	s := int(math.Ceil(e.Remaining.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// DeliveryError wraps the SMS provider's error.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return "sms delivery failed: " + e.Err.Error() }

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// CodeReason says internally why a code was rejected. It is logged and
// counted, but never shown to the caller.
type CodeReason string

const (
	ReasonNotFound  CodeReason = "not_found"
	ReasonExpired   CodeReason = "expired"
	ReasonExhausted CodeReason = "exhausted"
	ReasonMismatch  CodeReason = "mismatch"
)

// CodeError is returned for every rejected code.
type CodeError struct {
	Reason CodeReason
	// AttemptsRemaining is -1 when it is not known.
	AttemptsRemaining int
}

func (e *CodeError) Error() string { return ErrInvalidCode.Error() + " (" + string(e.Reason) + ")" }

func (e *CodeError) Is(target error) bool { return target == ErrInvalidCode }

func codeError(reason CodeReason, remaining int) *CodeError {
	return &CodeError{Reason: reason, AttemptsRemaining: remaining}
}
