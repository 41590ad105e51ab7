package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"haritsetu/backend/internal/identifier"
	"haritsetu/backend/internal/otp"
)

const defaultTimeout = 15 * time.Second

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("sms: API key not configured")

// SMSLocalClient sends fallback OTP SMS via the SMS Local bulk API (route=otp).
// See https://www.smslocal.com/dev/bulkV2.
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalClient returns a client that uses the given API key and optional base URL/sender.
func NewSMSLocalClient(apiKey, baseURL, sender string) *SMSLocalClient {
	if baseURL == "" {
		baseURL = "https://www.smslocal.com/dev/bulkV2"
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type sendRequest struct {
	Route     string `json:"route"`
	Numbers   string `json:"numbers"`
	Variables string `json:"variables"`
	SenderID  string `json:"sender_id,omitempty"`
}

type sendResponse struct {
	RequestID string `json:"request_id"`
}

// Send delivers msg.Code to a phone identifier. The number is sent as digits only
// (country code + subscriber number). Returns the gateway request id, or a generated
// id when the gateway does not supply one. Does not log the code.
func (c *SMSLocalClient) Send(ctx context.Context, to identifier.Identifier, msg otp.Message) (string, error) {
	if c.APIKey == "" {
		return "", ErrNotConfigured
	}
	if to.Kind() != identifier.KindPhone {
		return "", otp.ErrNoRoute
	}
	raw, err := json.Marshal(sendRequest{
		Route:     "otp",
		Numbers:   to.Digits(),
		Variables: msg.Code,
		SenderID:  c.Sender,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var out sendResponse
	if json.Unmarshal(b, &out) == nil && out.RequestID != "" {
		return out.RequestID, nil
	}
	return uuid.New().String(), nil
}
