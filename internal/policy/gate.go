// Package policy decides whether an OTP request or submission may proceed for a purpose,
// given whether an account already exists for the identifier.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Purpose is why the caller wants a code.
type Purpose string

const (
	PurposeLogin  Purpose = "login"
	PurposeSignup Purpose = "signup"
)

// ParsePurpose validates s.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeLogin, PurposeSignup:
		return p, nil
	default:
		return "", fmt.Errorf("purpose must be login or signup, got %q", s)
	}
}

// Reason explains a gate decision.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonAccountNotFound Reason = "account_not_found"
	ReasonAccountExists   Reason = "account_exists"
	ReasonUnknownPurpose  Reason = "unknown_purpose"
)

// Decision is the gate's verdict.
type Decision struct {
	Allow  bool
	Reason Reason
}

const policyQuery = "data.haritsetu.otp_gate.decision"

// Login requires an existing account; signup requires its absence.
const defaultRegoPolicy = `package haritsetu.otp_gate

default allow = false
default reason = "unknown_purpose"

allow if {
	input.purpose == "login"
	input.account_exists
}

allow if {
	input.purpose == "signup"
	not input.account_exists
}

reason = "ok" if {
	allow
}

reason = "account_not_found" if {
	input.purpose == "login"
	not input.account_exists
}

reason = "account_exists" if {
	input.purpose == "signup"
	input.account_exists
}

decision := {"allow": allow, "reason": reason}
`

// Gate evaluates the purpose policy with OPA. The policy is compiled once.
type Gate struct {
	query rego.PreparedEvalQuery
}

// NewGate compiles the built-in policy.
func NewGate(ctx context.Context) (*Gate, error) {
	return NewGateWithPolicy(ctx, defaultRegoPolicy)
}

// NewGateWithPolicy compiles a custom policy. It must define data.haritsetu.otp_gate.decision
// as an object with a boolean "allow" and a string "reason".
func NewGateWithPolicy(ctx context.Context, module string) (*Gate, error) {
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("otp_gate.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile purpose policy: %w", err)
	}
	return &Gate{query: q}, nil
}

// Check decides whether purpose may proceed given accountExists.
func (g *Gate) Check(ctx context.Context, purpose Purpose, accountExists bool) (Decision, error) {
	input := map[string]interface{}{
		"purpose":        string(purpose),
		"account_exists": accountExists,
	}
	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fallbackDecision(purpose, accountExists), fmt.Errorf("eval purpose policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fallbackDecision(purpose, accountExists), errors.New("purpose policy returned no result")
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return fallbackDecision(purpose, accountExists), fmt.Errorf("purpose policy returned %T", rs[0].Expressions[0].Value)
	}
	d := Decision{}
	d.Allow, _ = obj["allow"].(bool)
	if r, ok := obj["reason"].(string); ok {
		d.Reason = Reason(r)
	}
	return d, nil
}

// HealthCheck evaluates the compiled policy against a known input.
func (g *Gate) HealthCheck(ctx context.Context) error {
	d, err := g.Check(ctx, PurposeSignup, false)
	if err != nil {
		return err
	}
	if !d.Allow {
		return errors.New("purpose policy denied signup for a new identifier")
	}
	return nil
}

// fallbackDecision mirrors the built-in policy in Go; used when evaluation fails.
func fallbackDecision(purpose Purpose, accountExists bool) Decision {
	switch purpose {
	case PurposeLogin:
		if accountExists {
			return Decision{Allow: true, Reason: ReasonOK}
		}
		return Decision{Reason: ReasonAccountNotFound}
	case PurposeSignup:
		if accountExists {
			return Decision{Reason: ReasonAccountExists}
		}
		return Decision{Allow: true, Reason: ReasonOK}
	default:
		return Decision{Reason: ReasonUnknownPurpose}
	}
}
