package otp

import (
	"context"
	"time"

	"haritsetu/backend/internal/identifier"
)

// Provider is a hosted verification service that originates and tracks its own codes.
type Provider interface {
	// Originate asks the provider to send a code to id. Returns the provider's reference for the verification.
	Originate(ctx context.Context, id identifier.Identifier) (ref string, err error)
	// Check asks the provider whether code is the current code for id.
	// Returns VerdictExpired when the provider has no pending verification for id.
	Check(ctx context.Context, id identifier.Identifier, code string) (Verdict, error)
}

// Message is what a direct-message channel delivers on the fallback path.
type Message struct {
	Code string
	Text string
	TTL  time.Duration
}

// Messenger sends a message directly to an identifier (SMS, email).
type Messenger interface {
	Send(ctx context.Context, to identifier.Identifier, msg Message) (messageID string, err error)
}

// KindRouter sends phone identifiers through Phone and email identifiers through Email.
type KindRouter struct {
	Phone Messenger
	Email Messenger
}

// Send routes msg by the kind of to. Returns ErrNoRoute if the matching channel is nil.
func (r KindRouter) Send(ctx context.Context, to identifier.Identifier, msg Message) (string, error) {
	var m Messenger
	switch to.Kind() {
	case identifier.KindPhone:
		m = r.Phone
	case identifier.KindEmail:
		m = r.Email
	}
	if m == nil {
		return "", ErrNoRoute
	}
	return m.Send(ctx, to, msg)
}
