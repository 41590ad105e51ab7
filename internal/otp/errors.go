package otp

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")
	// ErrDelivery matches every *DeliveryError.
	ErrDelivery = errors.New("otp delivery failed")
	// ErrProviderUnavailable is returned by a Provider that is disabled or unreachable.
	ErrProviderUnavailable = errors.New("otp provider unavailable")
	// ErrNoRoute is returned by KindRouter when no channel handles the identifier kind.
	ErrNoRoute = errors.New("no delivery channel for identifier")
)

// ValidationError reports a malformed identifier, code, or request field. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DeliveryError reports that both the primary and the fallback channel failed. It is retryable.
// The underlying transport errors are kept for logging but are not part of the message.
type DeliveryError struct {
	Primary  error
	Fallback error
}

func (e *DeliveryError) Error() string { return "otp: delivery failed on all channels" }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// Retryable is always true; delivery failures leave no state behind.
func (e *DeliveryError) Retryable() bool { return true }

// Verdict is the outcome of a verification attempt.
type Verdict int

const (
	VerdictExpired Verdict = iota
	VerdictInvalid
	VerdictValid
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictInvalid:
		return "invalid"
	default:
		return "expired"
	}
}

// Channel identifies which delivery path handled a send.
type Channel int

const (
	ChannelNone Channel = iota
	ChannelPrimary
	ChannelFallback
)

func (c Channel) String() string {
	switch c {
	case ChannelPrimary:
		return "primary"
	case ChannelFallback:
		return "fallback"
	default:
		return "none"
	}
}
