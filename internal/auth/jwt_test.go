package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_signAndVerify(t *testing.T) {
	svc := NewJWTService("secret", 15*time.Minute)
	userID := uuid.New()

	token, expiresAt, err := svc.SignAccessToken(userID, testPhone, "abc123")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "abc123", claims.SessionID)
	assert.Equal(t, testPhone, claims.PhoneNumber)
	assert.Equal(t, "tiretrack", claims.Issuer)
}

func TestJWTService_rejectsOtherSecret(t *testing.T) {
	token, _, err := NewJWTService("secret", time.Minute).SignAccessToken(uuid.New(), testPhone, "abc")
	require.NoError(t, err)

	_, err = NewJWTService("other", time.Minute).VerifyToken(token)
	assert.Error(t, err)
}

func TestJWTService_rejectsExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewJWTService("secret", time.Minute)
	svc.now = clock.Now

	token, _, err := svc.SignAccessToken(uuid.New(), testPhone, "abc")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWTService_rejectsMissingSession(t *testing.T) {
	svc := NewJWTService("secret", time.Minute)
	token, _, err := svc.SignAccessToken(uuid.New(), testPhone, "")
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWTService_rejectsGarbage(t *testing.T) {
	_, err := NewJWTService("secret", time.Minute).VerifyToken("a.b.c")
	assert.Error(t, err)
}
