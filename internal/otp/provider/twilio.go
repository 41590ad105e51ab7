// Package provider holds hosted verification services used as the primary OTP channel.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"haritsetu/backend/internal/identifier"
	"haritsetu/backend/internal/otp"
)

const (
	defaultTwilioBaseURL = "https://verify.twilio.com"
	defaultTimeout       = 15 * time.Second
)

// TwilioVerify is an otp.Provider backed by the Twilio Verify v2 REST API.
// Twilio generates, delivers and checks the code; nothing is stored locally.
type TwilioVerify struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
	BaseURL    string
	HTTPClient *http.Client
}

// NewTwilioVerify returns a client for the given credentials. baseURL defaults to the public API.
func NewTwilioVerify(accountSID, authToken, serviceSID, baseURL string) *TwilioVerify {
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	return &TwilioVerify{
		AccountSID: accountSID,
		AuthToken:  authToken,
		ServiceSID: serviceSID,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Configured reports whether all credentials are present.
func (c *TwilioVerify) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.ServiceSID != ""
}

type verifyResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	Valid  bool   `json:"valid"`
}

// Originate starts a verification. Phones get an SMS, emails an email.
func (c *TwilioVerify) Originate(ctx context.Context, id identifier.Identifier) (string, error) {
	ch := "sms"
	if id.Kind() == identifier.KindEmail {
		ch = "email"
	}
	form := url.Values{"To": {id.String()}, "Channel": {ch}}
	var out verifyResponse
	status, err := c.post(ctx, "Verifications", form, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("twilio: verification failed status=%d", status)
	}
	return out.SID, nil
}

// Check submits code for id. "approved" is valid; 404 means there is no pending verification.
func (c *TwilioVerify) Check(ctx context.Context, id identifier.Identifier, code string) (otp.Verdict, error) {
	form := url.Values{"To": {id.String()}, "Code": {code}}
	var out verifyResponse
	status, err := c.post(ctx, "VerificationCheck", form, &out)
	if err != nil {
		return otp.VerdictInvalid, err
	}
	switch {
	case status == http.StatusNotFound:
		return otp.VerdictExpired, nil
	case status != http.StatusOK && status != http.StatusCreated:
		return otp.VerdictInvalid, fmt.Errorf("twilio: verification check failed status=%d", status)
	case out.Status == "approved" || out.Valid:
		return otp.VerdictValid, nil
	case out.Status == "expired" || out.Status == "canceled":
		return otp.VerdictExpired, nil
	default:
		return otp.VerdictInvalid, nil
	}
}

func (c *TwilioVerify) post(ctx context.Context, resource string, form url.Values, out any) (int, error) {
	if !c.Configured() {
		return 0, otp.ErrProviderUnavailable
	}
	endpoint := fmt.Sprintf("%s/v2/Services/%s/%s", c.BaseURL, url.PathEscape(c.ServiceSID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", otp.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("%w: status=%d", otp.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 300 && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("twilio: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
