package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a customer identified by phone number
type User struct {
	ID          uuid.UUID
	PhoneNumber string
	DisplayName *string
	CreatedAt   time.Time
}

// OtpRecord is the single live one-time code for a phone number.
// Only the hash of the code is kept.
type OtpRecord struct {
	ID           uuid.UUID
	PhoneNumber  string
	CodeHash     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastSentAt   time.Time
	AttemptsUsed int
	MaxAttempts  int
}

// Expired reports whether the record is past its expiry at now.
func (r OtpRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Exhausted reports whether the attempts ceiling has been reached.
func (r OtpRecord) Exhausted() bool {
	return r.AttemptsUsed >= r.MaxAttempts
}

// SessionRecord is a login session. The token itself is never stored, only its hash.
type SessionRecord struct {
	TokenHash string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s SessionRecord) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
