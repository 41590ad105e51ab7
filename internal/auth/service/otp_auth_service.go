// Package service implements the OTP login and signup flows: purpose gating, delivery,
// verification, session issue and signup finalization.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"haritsetu/backend/internal/account/domain"
	accountrepo "haritsetu/backend/internal/account/repository"
	"haritsetu/backend/internal/audit"
	auditdomain "haritsetu/backend/internal/audit/domain"
	"haritsetu/backend/internal/identifier"
	"haritsetu/backend/internal/otp"
	"haritsetu/backend/internal/policy"
	"haritsetu/backend/internal/telemetry"
)

// DefaultMarkerTTL bounds the gap between a verified signup code and CompleteSignup.
const DefaultMarkerTTL = 15 * time.Minute

// markerValue is stored in the marker store; only its presence matters.
const markerValue = "verified"

// Statuses reported by RequestOTP and SubmitOTP.
const (
	StatusSent    = "sent"
	StatusValid   = "valid"
	StatusInvalid = "invalid"
	StatusExpired = "expired"
)

// AccountRepo is the minimal account repository needed by the service.
type AccountRepo interface {
	GetByIdentifier(ctx context.Context, id string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
}

// OTPEngine sends and verifies codes.
type OTPEngine interface {
	Send(ctx context.Context, id identifier.Identifier) (otp.DeliveryResult, error)
	Verify(ctx context.Context, id identifier.Identifier, code string) (otp.Verdict, error)
	TTL() time.Duration
}

// PurposeGate decides whether a purpose may proceed given account existence.
type PurposeGate interface {
	Check(ctx context.Context, purpose policy.Purpose, accountExists bool) (policy.Decision, error)
}

// SessionIssuer issues signed session tokens.
type SessionIssuer interface {
	IssueSession(accountID, identifier, role string) (string, time.Time, error)
}

// RequestResult is returned by RequestOTP.
type RequestResult struct {
	Status     string
	Channel    otp.Channel
	Identifier identifier.Identifier
	ExpiresIn  time.Duration
}

// SubmitResult is returned by SubmitOTP. Account and Token are set only for a verified login.
type SubmitResult struct {
	Status    string
	Verdict   otp.Verdict
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
}

// SignupResult is returned by CompleteSignup.
type SignupResult struct {
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
}

// Config holds optional service settings.
type Config struct {
	Normalizer identifier.Normalizer
	// MarkerTTL defaults to DefaultMarkerTTL.
	MarkerTTL time.Duration
}

// OTPAuthService runs the login and signup flows.
type OTPAuthService struct {
	accounts   AccountRepo
	engine     OTPEngine
	gate       PurposeGate
	tokens     SessionIssuer
	markers    otp.Store
	markerTTL  time.Duration
	normalizer identifier.Normalizer
	audit      audit.AuditLogger
	events     telemetry.EventEmitter
	logger     zerolog.Logger
	tracer     trace.Tracer
	metrics    *metrics
	nowF       func() time.Time
	newID      func() string
}

// NewOTPAuthService returns a service with the given dependencies. markers holds the
// short-lived "verified for signup" flag per identifier; auditLogger and events may be nil.
func NewOTPAuthService(
	accounts AccountRepo,
	engine OTPEngine,
	gate PurposeGate,
	tokens SessionIssuer,
	markers otp.Store,
	cfg Config,
	auditLogger audit.AuditLogger,
	events telemetry.EventEmitter,
	logger zerolog.Logger,
) *OTPAuthService {
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = DefaultMarkerTTL
	}
	if markers == nil {
		markers = otp.NewMemoryStore(0)
	}
	return &OTPAuthService{
		accounts:   accounts,
		engine:     engine,
		gate:       gate,
		tokens:     tokens,
		markers:    markers,
		markerTTL:  cfg.MarkerTTL,
		normalizer: cfg.Normalizer,
		audit:      auditLogger,
		events:     events,
		logger:     logger.With().Str("component", "otp_auth").Logger(),
		tracer:     otel.Tracer(instrumentationName),
		metrics:    newMetrics(),
		nowF:       func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}
}

// RequestOTP gates purpose against account existence and sends a code to the normalized identifier.
func (s *OTPAuthService) RequestOTP(ctx context.Context, raw, purposeStr string) (*RequestResult, error) {
	ctx, span := s.tracer.Start(ctx, "otp.RequestOTP")
	defer span.End()

	purpose, err := parsePurpose(purposeStr)
	if err != nil {
		return nil, s.fail(span, err)
	}
	id, err := s.resolveIdentifier(raw)
	if err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.String("otp.purpose", string(purpose)), attribute.String("otp.identifier_kind", id.Kind().String()))

	exists, err := s.accountExists(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.admit(ctx, purpose, exists); err != nil {
		s.metrics.request(ctx, string(purpose), "", "denied")
		return nil, s.fail(span, err)
	}

	res, err := s.engine.Send(ctx, id)
	if err != nil {
		s.metrics.request(ctx, string(purpose), "", "failed")
		s.record(ctx, "", id, auditdomain.ActionOTPRequested, telemetry.EventOTPRequested, purpose, "", "failed")
		return nil, s.fail(span, err)
	}
	channel := res.Channel.String()
	s.metrics.request(ctx, string(purpose), channel, "sent")
	s.record(ctx, "", id, auditdomain.ActionOTPRequested, telemetry.EventOTPRequested, purpose, channel, "sent")
	return &RequestResult{
		Status:     StatusSent,
		Channel:    res.Channel,
		Identifier: id,
		ExpiresIn:  s.engine.TTL(),
	}, nil
}

// SubmitOTP verifies code for the identifier. An invalid or expired code is reported in the
// result, not as an error. A verified login returns the account and a session token; a
// verified signup marks the identifier so CompleteSignup may run.
func (s *OTPAuthService) SubmitOTP(ctx context.Context, raw, code, purposeStr string) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "otp.SubmitOTP")
	defer span.End()

	purpose, err := parsePurpose(purposeStr)
	if err != nil {
		return nil, s.fail(span, err)
	}
	id, err := s.resolveIdentifier(raw)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if !otp.ValidCodeFormat(code) {
		return nil, s.fail(span, &otp.ValidationError{Field: "code", Reason: "must be 6 digits"})
	}
	span.SetAttributes(attribute.String("otp.purpose", string(purpose)))

	verdict, err := s.engine.Verify(ctx, id, code)
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.metrics.verification(ctx, string(purpose), verdict.String())
	span.SetAttributes(attribute.String("otp.verdict", verdict.String()))
	if verdict != otp.VerdictValid {
		s.record(ctx, "", id, auditdomain.ActionOTPRejected, telemetry.EventOTPRejected, purpose, "", verdict.String())
		status := StatusInvalid
		if verdict == otp.VerdictExpired {
			status = StatusExpired
		}
		return &SubmitResult{Status: status, Verdict: verdict}, nil
	}
	s.record(ctx, "", id, auditdomain.ActionOTPVerified, telemetry.EventOTPVerified, purpose, "", "valid")

	switch purpose {
	case policy.PurposeLogin:
		return s.finishLogin(ctx, span, id)
	default:
		return s.markVerified(ctx, span, id)
	}
}

func (s *OTPAuthService) finishLogin(ctx context.Context, span trace.Span, id identifier.Identifier) (*SubmitResult, error) {
	acct, err := s.accounts.GetByIdentifier(ctx, id.String())
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("lookup account: %w", err))
	}
	if acct == nil {
		// Account removed between request and submit.
		return nil, s.fail(span, &GateError{Purpose: policy.PurposeLogin, Reason: policy.ReasonAccountNotFound})
	}
	token, exp, err := s.tokens.IssueSession(acct.ID, acct.Identifier, string(acct.Role))
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("issue session: %w", err))
	}
	s.record(ctx, acct.ID, id, auditdomain.ActionLoginSucceeded, telemetry.EventLoginSucceeded, policy.PurposeLogin, "", "success")
	return &SubmitResult{
		Status:    StatusValid,
		Verdict:   otp.VerdictValid,
		Account:   acct,
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

func (s *OTPAuthService) markVerified(ctx context.Context, span trace.Span, id identifier.Identifier) (*SubmitResult, error) {
	exists, err := s.accountExists(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if exists {
		return nil, s.fail(span, &GateError{Purpose: policy.PurposeSignup, Reason: policy.ReasonAccountExists, AccountExists: true})
	}
	if err := s.markers.Put(ctx, id, markerValue, s.markerTTL); err != nil {
		return nil, s.fail(span, fmt.Errorf("store signup marker: %w", err))
	}
	return &SubmitResult{Status: StatusValid, Verdict: otp.VerdictValid}, nil
}

// CompleteSignup creates the account for an identifier verified through SubmitOTP with
// purpose signup, then issues a session for it.
func (s *OTPAuthService) CompleteSignup(ctx context.Context, raw string, profile Profile) (*SignupResult, error) {
	ctx, span := s.tracer.Start(ctx, "otp.CompleteSignup")
	defer span.End()

	id, err := s.resolveIdentifier(raw)
	if err != nil {
		return nil, s.fail(span, err)
	}
	profile.trim()
	if err := validateProfile(profile); err != nil {
		return nil, s.fail(span, err)
	}
	role, err := domain.ParseRole(profile.Role)
	if err != nil {
		return nil, s.fail(span, &otp.ValidationError{Field: "role", Reason: err.Error()})
	}

	if _, ok, err := s.markers.Get(ctx, id); err != nil {
		return nil, s.fail(span, fmt.Errorf("read signup marker: %w", err))
	} else if !ok {
		return nil, s.fail(span, ErrSignupNotVerified)
	}
	exists, err := s.accountExists(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if exists {
		return nil, s.fail(span, &GateError{Purpose: policy.PurposeSignup, Reason: policy.ReasonAccountExists, AccountExists: true})
	}

	now := s.nowF()
	acct := &domain.Account{
		ID:         s.newID(),
		Identifier: id.String(),
		Name:       profile.Name,
		District:   profile.District,
		Taluka:     profile.Taluka,
		Village:    profile.Village,
		Role:       role,
		Verified:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	switch id.Kind() {
	case identifier.KindPhone:
		acct.Phone = id.String()
		if profile.Email != "" {
			acct.Email = identifier.Normalize(profile.Email).String()
		}
	case identifier.KindEmail:
		acct.Email = id.String()
		if profile.Phone != "" {
			phone := s.normalizer.Normalize(profile.Phone)
			if err := identifier.Validate(phone); err != nil || phone.Kind() != identifier.KindPhone {
				return nil, s.fail(span, &otp.ValidationError{Field: "phone", Reason: "not a valid phone number"})
			}
			acct.Phone = phone.String()
		}
	}
	if err := acct.Validate(); err != nil {
		return nil, s.fail(span, &otp.ValidationError{Field: "account", Reason: err.Error()})
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, accountrepo.ErrDuplicate) {
			return nil, s.fail(span, &GateError{Purpose: policy.PurposeSignup, Reason: policy.ReasonAccountExists, AccountExists: true})
		}
		return nil, s.fail(span, fmt.Errorf("create account: %w", err))
	}
	if err := s.markers.Consume(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("identifier", identifier.Mask(id)).Msg("clearing signup marker failed")
	}

	token, exp, err := s.tokens.IssueSession(acct.ID, acct.Identifier, string(acct.Role))
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("issue session: %w", err))
	}
	s.metrics.signup(ctx, string(acct.Role))
	s.record(ctx, acct.ID, id, auditdomain.ActionSignupCompleted, telemetry.EventSignupComplete, policy.PurposeSignup, "", "success")
	s.logger.Info().Str("account_id", acct.ID).Str("role", string(acct.Role)).Msg("signup completed")
	return &SignupResult{Account: acct, Token: token, ExpiresAt: exp}, nil
}

func parsePurpose(s string) (policy.Purpose, error) {
	p, err := policy.ParsePurpose(s)
	if err != nil {
		return "", &otp.ValidationError{Field: "purpose", Reason: "must be login or signup"}
	}
	return p, nil
}

func (s *OTPAuthService) resolveIdentifier(raw string) (identifier.Identifier, error) {
	id := s.normalizer.Normalize(raw)
	if err := identifier.Validate(id); err != nil {
		reason := "must be a phone number or email"
		if errors.Is(err, identifier.ErrEmpty) {
			reason = "must not be empty"
		}
		return "", &otp.ValidationError{Field: "identifier", Reason: reason}
	}
	return id, nil
}

func (s *OTPAuthService) accountExists(ctx context.Context, id identifier.Identifier) (bool, error) {
	acct, err := s.accounts.GetByIdentifier(ctx, id.String())
	if err != nil {
		return false, fmt.Errorf("lookup account: %w", err)
	}
	return acct != nil, nil
}

func (s *OTPAuthService) admit(ctx context.Context, purpose policy.Purpose, exists bool) error {
	d, err := s.gate.Check(ctx, purpose, exists)
	if err != nil {
		return fmt.Errorf("purpose gate: %w", err)
	}
	if !d.Allow {
		return gateError(purpose, d, exists)
	}
	return nil
}

// record writes the audit row and emits the telemetry event. Both are best-effort.
func (s *OTPAuthService) record(ctx context.Context, accountID string, id identifier.Identifier, action, eventType string, purpose policy.Purpose, channel, outcome string) {
	masked := identifier.Mask(id)
	if s.audit != nil {
		s.audit.LogEvent(ctx, audit.Event{
			AccountID:  accountID,
			Identifier: masked,
			Action:     action,
			Channel:    channel,
			Outcome:    outcome,
			Metadata:   string(purpose),
		})
	}
	if s.events != nil {
		ev := telemetry.NewEvent(eventType)
		ev.AccountID = accountID
		ev.Identifier = masked
		ev.Purpose = string(purpose)
		ev.Channel = channel
		ev.Outcome = outcome
		telemetry.EmitAsync(s.events, ctx, ev)
	}
}

func (s *OTPAuthService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
