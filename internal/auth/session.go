package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tiretrack/server/internal/model"
	"github.com/tiretrack/server/internal/repo"
)

const sessionTokenBytes = 32

// NewSessionToken returns a random Base64URL token (32 bytes) and its SHA256 hash as hex
func NewSessionToken() (token string, hashHex string, err error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashSessionToken(token), nil
}

// HashSessionToken returns SHA256 hex of the token
func HashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func wellFormedToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(sessionTokenBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

// SessionManager mints, resolves and destroys opaque session tokens.
// Sessions are stored under the token hash; the token itself is never kept.
type SessionManager struct {
	sessions repo.SessionRepo
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionManager creates a new session manager
func NewSessionManager(sessions repo.SessionRepo, ttl time.Duration) *SessionManager {
	return &SessionManager{sessions: sessions, ttl: ttl, now: time.Now}
}

// Create opens a session for userID that expires after the session TTL.
func (m *SessionManager) Create(ctx context.Context, userID uuid.UUID) (string, model.SessionRecord, error) {
	token, hash, err := NewSessionToken()
	if err != nil {
		return "", model.SessionRecord{}, err
	}

	now := m.now()
	s := model.SessionRecord{
		TokenHash: hash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return "", model.SessionRecord{}, fmt.Errorf("create session: %w", err)
	}
	return token, s, nil
}

// Resolve returns the live session for token. A nil session with a nil
// error means the token is empty, malformed, unknown or expired.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*model.SessionRecord, error) {
	if !wellFormedToken(token) {
		return nil, nil
	}
	return m.ResolveHash(ctx, HashSessionToken(token))
}

// ResolveHash is Resolve for a token hash, as carried in access tokens.
func (m *SessionManager) ResolveHash(ctx context.Context, tokenHash string) (*model.SessionRecord, error) {
	if tokenHash == "" {
		return nil, nil
	}
	s, err := m.sessions.Get(ctx, tokenHash)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s.Expired(m.now()) {
		return nil, nil
	}
	return &s, nil
}

// Destroy deletes the session for token and reports whether one was removed.
// Unknown or malformed tokens are a no-op.
func (m *SessionManager) Destroy(ctx context.Context, token string) (bool, error) {
	if !wellFormedToken(token) {
		return false, nil
	}
	return m.DestroyHash(ctx, HashSessionToken(token))
}

// DestroyHash is Destroy for a token hash, as carried in access tokens.
func (m *SessionManager) DestroyHash(ctx context.Context, tokenHash string) (bool, error) {
	if tokenHash == "" {
		return false, nil
	}
	removed, err := m.sessions.Delete(ctx, tokenHash)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return removed, nil
}
