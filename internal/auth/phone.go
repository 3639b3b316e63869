package auth

import (
	"fmt"
	"strings"

	"github.com/tiretrack/server/internal/sms"
)

// NormalizePhone returns the canonical 10-digit Thai mobile number (0XXXXXXXXX).
// Separators are dropped and a +66/66 country prefix is rewritten to the leading 0.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: phone number contains %q", ErrInvalidInput, r)
		}
	}

	digits := b.String()
	if strings.HasPrefix(digits, "66") && len(digits) == 11 {
		digits = "0" + digits[2:]
	}

	if len(digits) != 10 || digits[0] != '0' || !strings.ContainsRune("689", rune(digits[1])) {
		return "", fmt.Errorf("%w: not a Thai mobile number", ErrInvalidInput)
	}
	return digits, nil
}

// E164 converts a canonical phone number to +66XXXXXXXXX for SMS delivery.
func E164(phone string) string {
	return "+66" + strings.TrimPrefix(phone, "0")
}

// MaskPhone masks a phone number for logging (e.g., 08******78)
func MaskPhone(phone string) string {
	return sms.MaskPhone(phone)
}
