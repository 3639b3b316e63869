package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPMessage(t *testing.T) {
	en := OTPMessage("en", "482913", 5*time.Minute)
	assert.Contains(t, en, "482913")
	assert.Contains(t, en, "5 minutes")

	th := OTPMessage("th", "482913", 5*time.Minute)
	assert.Contains(t, th, "482913")
	assert.Contains(t, th, "5 นาที")

	assert.Contains(t, OTPMessage("en", "1", 10*time.Second), "1 minutes")
}

func TestLogSender_neverFails(t *testing.T) {
	assert.NoError(t, NewLogSender(false).Send(context.Background(), "+66812345678", "hi"))
	assert.NoError(t, NewLogSender(true).Send(context.Background(), "+66812345678", "hi"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "08******78", MaskPhone("+66812345678"))
	assert.Equal(t, "08******78", MaskPhone("0812345678"))
	assert.Equal(t, "****", MaskPhone("+66"))
}

func newTwilioTest(t *testing.T, handler http.HandlerFunc) *TwilioSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewTwilioSender("AC123", "token", "+15005550006")
	s.baseURL = srv.URL
	return s
}

func TestTwilioSender_success(t *testing.T) {
	s := newTwilioTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+66812345678", r.PostForm.Get("To"))
		assert.Equal(t, "+15005550006", r.PostForm.Get("From"))
		assert.Equal(t, "code 123456", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	})

	assert.NoError(t, s.Send(context.Background(), "+66812345678", "code 123456"))
}

func TestTwilioSender_providerError(t *testing.T) {
	s := newTwilioTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number.","status":400}`))
	})

	err := s.Send(context.Background(), "+66812345678", "code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "not a valid phone number")
}

func TestTwilioSender_requiresCountryCode(t *testing.T) {
	s := NewTwilioSender("AC123", "token", "+15005550006")
	assert.Error(t, s.Send(context.Background(), "0812345678", "code"))
}
