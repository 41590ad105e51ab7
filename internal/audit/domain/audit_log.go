package domain

import "time"

// Audit actions recorded by the OTP flows.
const (
	ActionOTPRequested    = "otp_requested"
	ActionOTPVerified     = "otp_verified"
	ActionOTPRejected     = "otp_rejected"
	ActionSignupCompleted = "signup_completed"
	ActionLoginSucceeded  = "login_succeeded"
)

// AuditLog is one security-relevant event. Identifier is stored masked.
type AuditLog struct {
	ID         string
	AccountID  string // empty before an account exists
	Identifier string
	Action     string
	Channel    string
	Outcome    string
	IP         string
	Metadata   string
	CreatedAt  time.Time
}
