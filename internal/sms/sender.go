package sms

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Sender delivers a text message to an E.164 phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// OTPMessage renders the one-time code SMS in the given locale (th or en).
func OTPMessage(locale, code string, ttl time.Duration) string {
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	switch locale {
	case "en":
		return fmt.Sprintf("TireTrack: your verification code is %s. It expires in %d minutes. Do not share this code.", code, minutes)
	default:
		return fmt.Sprintf("TireTrack: รหัสยืนยันของคุณคือ %s ใช้ได้ภายใน %d นาที ห้ามเปิดเผยรหัสนี้กับผู้อื่น", code, minutes)
	}
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	// ShowMessage logs the message body, code included. Dev mode only.
	ShowMessage bool
}

// NewLogSender creates a sender for local development and tests
func NewLogSender(showMessage bool) *LogSender {
	return &LogSender{ShowMessage: showMessage}
}

func (s *LogSender) Send(_ context.Context, phone, message string) error {
	if s.ShowMessage {
		log.Printf("SMS to %s: %s", MaskPhone(phone), message)
		return nil
	}
	log.Printf("SMS to %s: (%d bytes, body hidden)", MaskPhone(phone), len(message))
	return nil
}

// MaskPhone masks a phone number for logging (e.g., 08******78).
// E.164 numbers are shown in national form.
func MaskPhone(phone string) string {
	if strings.HasPrefix(phone, "+66") {
		phone = "0" + phone[3:]
	}
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
