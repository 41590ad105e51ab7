package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"haritsetu/backend/internal/identifier"
	"haritsetu/backend/internal/otp"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*TwilioVerify, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewTwilioVerify("AC123", "token", "VA456", srv.URL)
	return c, srv.Close
}

func TestNewTwilioVerify_Defaults(t *testing.T) {
	c := NewTwilioVerify("a", "b", "c", "")
	if c.BaseURL != defaultTwilioBaseURL {
		t.Errorf("BaseURL = %q, want default", c.BaseURL)
	}
	if c.HTTPClient == nil || c.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient not configured with default timeout")
	}
	if !c.Configured() {
		t.Error("Configured = false with all credentials")
	}
}

func TestOriginate_SendsSMSForPhone(t *testing.T) {
	c, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/Services/VA456/Verifications" {
			t.Errorf("path = %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("To") != "+919876543210" || r.PostForm.Get("Channel") != "sms" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"VE1","status":"pending"}`))
	})
	defer done()

	ref, err := c.Originate(context.Background(), "+919876543210")
	if err != nil {
		t.Fatalf("Originate: %v", err)
	}
	if ref != "VE1" {
		t.Errorf("ref = %q, want VE1", ref)
	}
}

func TestOriginate_EmailChannel(t *testing.T) {
	c, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("Channel") != "email" {
			t.Errorf("Channel = %q, want email", r.PostForm.Get("Channel"))
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"VE2"}`))
	})
	defer done()
	if _, err := c.Originate(context.Background(), identifier.Identifier("farmer@demo.com")); err != nil {
		t.Fatalf("Originate: %v", err)
	}
}

func TestOriginate_ServerError(t *testing.T) {
	c, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer done()
	_, err := c.Originate(context.Background(), "+919876543210")
	if !errors.Is(err, otp.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestOriginate_ClientError(t *testing.T) {
	c, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":60200,"message":"Invalid parameter"}`))
	})
	defer done()
	if _, err := c.Originate(context.Background(), "+919876543210"); err == nil {
		t.Error("expected error for 400")
	}
}

func TestOriginate_NotConfigured(t *testing.T) {
	c := NewTwilioVerify("", "", "", "")
	if _, err := c.Originate(context.Background(), "+919876543210"); !errors.Is(err, otp.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestCheck_Verdicts(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   otp.Verdict
	}{
		{"approved", http.StatusOK, `{"status":"approved","valid":true}`, otp.VerdictValid},
		{"pending", http.StatusOK, `{"status":"pending","valid":false}`, otp.VerdictInvalid},
		{"expired", http.StatusOK, `{"status":"expired"}`, otp.VerdictExpired},
		{"not found", http.StatusNotFound, `{"code":20404}`, otp.VerdictExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, done := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v2/Services/VA456/VerificationCheck" {
					t.Errorf("path = %q", r.URL.Path)
				}
				_ = r.ParseForm()
				if r.PostForm.Get("Code") != "123456" {
					t.Errorf("Code = %q", r.PostForm.Get("Code"))
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			defer done()
			got, err := c.Check(context.Background(), "+919876543210", "123456")
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if got != tt.want {
				t.Errorf("verdict = %v, want %v", got, tt.want)
			}
		})
	}
}
