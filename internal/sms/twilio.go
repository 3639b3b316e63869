package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioSender sends messages through the Twilio Messages API.
type TwilioSender struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     *http.Client
}

type twilioResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	ErrorCode    any    `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewTwilioSender creates a Twilio sender with a 10s request timeout
func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    twilioBaseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwilioSender) Send(ctx context.Context, phone, message string) error {
	if !strings.HasPrefix(phone, "+") {
		return errors.New("phone number must include country code")
	}

	data := url.Values{}
	data.Set("To", phone)
	data.Set("From", t.fromNumber)
	data.Set("Body", message)

	apiURL := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var twilioResp twilioResponse
	_ = json.Unmarshal(body, &twilioResp)

	if resp.StatusCode != http.StatusCreated {
		msg := fmt.Sprintf("twilio API error (status %d)", resp.StatusCode)
		switch {
		case twilioResp.ErrorMessage != "":
			msg += ": " + twilioResp.ErrorMessage
		case twilioResp.Message != "":
			msg += ": " + twilioResp.Message
		}
		return errors.New(msg)
	}
	return nil
}
