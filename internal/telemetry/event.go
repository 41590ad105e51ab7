package telemetry

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the OTP flows.
const (
	EventOTPRequested   = "otp_requested"
	EventOTPVerified    = "otp_verified"
	EventOTPRejected    = "otp_rejected"
	EventSignupComplete = "signup_completed"
	EventLoginSucceeded = "login_succeeded"
)

// SourceOTPService is the Source of events emitted by the auth service.
const SourceOTPService = "otp-service"

// Event is one telemetry record. Identifier is always masked; codes are never included.
type Event struct {
	ID         string          `json:"id"`
	EventType  string          `json:"eventType"`
	Source     string          `json:"source"`
	AccountID  string          `json:"accountId,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
	Purpose    string          `json:"purpose,omitempty"`
	Channel    string          `json:"channel,omitempty"`
	Outcome    string          `json:"outcome,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// NewEvent returns an event of eventType stamped with a fresh id and the current time.
func NewEvent(eventType string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		EventType: eventType,
		Source:    SourceOTPService,
		CreatedAt: time.Now().UTC(),
	}
}
