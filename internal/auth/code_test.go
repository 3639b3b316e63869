package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := generateCode(6)
		require.NoError(t, err)
		assert.True(t, validCode(code, 6), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes should vary")

	_, err := generateCode(0)
	assert.Error(t, err)
}

func TestDevCode(t *testing.T) {
	assert.Equal(t, "123456", devCode(6))
	assert.Equal(t, "1234", devCode(4))
	assert.Equal(t, "1234567890", devCode(12))
}

func TestValidCode(t *testing.T) {
	assert.True(t, validCode("000000", 6))
	assert.False(t, validCode("12345", 6))
	assert.False(t, validCode("12345a", 6))
	assert.False(t, validCode("", 6))
}

func TestHashCode_consistency(t *testing.T) {
	phone, code, salt := "0812345678", "123456", "test-salt"
	h1 := hashCode(phone, code, salt)
	h2 := hashCode(phone, code, salt)
	assert.Equal(t, h1, h2, "hash should be deterministic")

	decoded, err := hex.DecodeString(h1)
	require.NoError(t, err, "hash should be valid hex")
	assert.Len(t, decoded, 32)
}

func TestHashCode_differentInputsDifferentHash(t *testing.T) {
	salt := "salt"
	h1 := hashCode("0812345678", "123456", salt)
	h2 := hashCode("0812345679", "123456", salt)
	h3 := hashCode("0812345678", "654321", salt)
	h4 := hashCode("0812345678", "123456", "other")
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h1, h4)
}

func TestCodeMatches(t *testing.T) {
	assert.True(t, codeMatches("same", "same"))
	assert.False(t, codeMatches("same", "diff"))
	assert.False(t, codeMatches("a", "ab"))
	assert.False(t, codeMatches("", "x"))
}

func TestCooldownError(t *testing.T) {
	err := error(&CooldownError{Remaining: 1500 * time.Millisecond})
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, 2, err.(*CooldownError).Seconds())
	assert.Equal(t, 1, (&CooldownError{Remaining: -time.Second}).Seconds())
	assert.Equal(t, 60, (&CooldownError{Remaining: 60 * time.Second}).Seconds())
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("provider down")
	err := fmt.Errorf("request: %w", &DeliveryError{Err: cause})
	assert.True(t, errors.Is(err, ErrDeliveryFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "provider down")
}

func TestCodeError(t *testing.T) {
	err := error(codeError(ReasonExpired, -1))
	assert.True(t, errors.Is(err, ErrInvalidCode))
	var ce *CodeError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ReasonExpired, ce.Reason)
}
