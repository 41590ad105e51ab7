package service

import (
	"errors"
	"fmt"

	"haritsetu/backend/internal/policy"
)

// Sentinel errors for the auth service; the handler maps them to gRPC codes.
var (
	ErrAccountNotFound   = errors.New("no account is registered for this identifier")
	ErrAccountExists     = errors.New("an account is already registered for this identifier")
	ErrSignupNotVerified = errors.New("identifier has not been verified for signup")
	ErrPolicyDenied      = errors.New("request denied by policy")
)

// GateError is a purpose-gate rejection. AccountExists lets the caller send the user to the
// other flow (login vs signup).
type GateError struct {
	Purpose       policy.Purpose
	Reason        policy.Reason
	AccountExists bool
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Purpose, e.Reason)
}

// Is matches ErrAccountNotFound, ErrAccountExists or ErrPolicyDenied by reason.
func (e *GateError) Is(target error) bool {
	switch target {
	case ErrAccountNotFound:
		return e.Reason == policy.ReasonAccountNotFound
	case ErrAccountExists:
		return e.Reason == policy.ReasonAccountExists
	case ErrPolicyDenied:
		return true
	}
	return false
}

func gateError(purpose policy.Purpose, d policy.Decision, exists bool) *GateError {
	return &GateError{Purpose: purpose, Reason: d.Reason, AccountExists: exists}
}
