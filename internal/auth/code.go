package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const devCodeDigits = "1234567890"

// generateCode returns length digits, each drawn uniformly from crypto/rand.
func generateCode(length int) (string, error) {
	if length < 1 {
		return "", errors.New("invalid otp length")
	}
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// devCode is the fixed code used in dev mode ("123456" for six digits).
func devCode(length int) string {
	if length > len(devCodeDigits) {
		length = len(devCodeDigits)
	}
	return devCodeDigits[:length]
}

func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// hashCode returns SHA-256(phone:code:salt) as hex for storage
func hashCode(phone, code, salt string) string {
	hash := sha256.Sum256([]byte(phone + ":" + code + ":" + salt))
	return hex.EncodeToString(hash[:])
}

func codeMatches(storedHash, providedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(providedHash)) == 1
}
