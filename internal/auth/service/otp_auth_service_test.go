package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"haritsetu/backend/internal/account/domain"
	accountrepo "haritsetu/backend/internal/account/repository"
	"haritsetu/backend/internal/audit"
	"haritsetu/backend/internal/identifier"
	"haritsetu/backend/internal/otp"
	"haritsetu/backend/internal/policy"
	"haritsetu/backend/internal/security"
)

const (
	demoPhone = "+919876543210"
	demoEmail = "farmer@demo.com"
)

type downProvider struct{}

func (downProvider) Originate(context.Context, identifier.Identifier) (string, error) {
	return "", otp.ErrProviderUnavailable
}

func (downProvider) Check(context.Context, identifier.Identifier, string) (otp.Verdict, error) {
	return otp.VerdictExpired, otp.ErrProviderUnavailable
}

type capturingMessenger struct {
	mu   sync.Mutex
	last map[identifier.Identifier]otp.Message
	err  error
}

func (m *capturingMessenger) Send(_ context.Context, to identifier.Identifier, msg otp.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		m.last = make(map[identifier.Identifier]otp.Message)
	}
	m.last[to] = msg
	return "msg-1", nil
}

func (m *capturingMessenger) code(id identifier.Identifier) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[id].Code
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) LogEvent(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

type fixture struct {
	svc       *OTPAuthService
	accounts  *accountrepo.MemoryRepository
	store     *otp.MemoryStore
	messenger *capturingMessenger
	audit     *recordingAudit
	tokens    *security.TokenProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	gate, err := policy.NewGate(ctx)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	f := &fixture{
		accounts:  accountrepo.NewMemoryRepository(),
		store:     otp.NewMemoryStore(4),
		messenger: &capturingMessenger{},
		audit:     &recordingAudit{},
		tokens:    tokens,
	}
	engine := otp.NewEngine(f.store, downProvider{}, f.messenger, otp.Config{}, zerolog.Nop())
	f.svc = NewOTPAuthService(f.accounts, engine, gate, tokens, nil, Config{}, f.audit, nil, zerolog.Nop())
	return f
}

func (f *fixture) seed(t *testing.T, id string) *domain.Account {
	t.Helper()
	a := &domain.Account{ID: "acct-1", Identifier: id, Phone: id, Name: "Demo Farmer", Role: domain.RoleFarmer, Verified: true}
	if err := f.accounts.Create(context.Background(), a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func TestRequestOTP_LoginWithoutAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestOTP(context.Background(), demoPhone, "login")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
	var ge *GateError
	if !errors.As(err, &ge) || ge.AccountExists {
		t.Errorf("gate error = %+v, want AccountExists=false", ge)
	}
	if f.store.Len() != 0 {
		t.Error("code stored despite gate rejection")
	}
}

func TestRequestOTP_SignupWithExistingAccount(t *testing.T) {
	f := newFixture(t)
	f.seed(t, demoPhone)
	_, err := f.svc.RequestOTP(context.Background(), "98765 43210", "signup")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
	var ge *GateError
	if !errors.As(err, &ge) || !ge.AccountExists {
		t.Errorf("gate error = %+v, want AccountExists=true", ge)
	}
}

func TestRequestOTP_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name, id, purpose string
	}{
		{"empty identifier", "  ", "signup"},
		{"malformed identifier", "not-a-number", "signup"},
		{"unknown purpose", demoPhone, "reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.RequestOTP(context.Background(), tt.id, tt.purpose); !errors.Is(err, otp.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestRequestOTP_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.messenger.err = errors.New("smtp down")
	_, err := f.svc.RequestOTP(context.Background(), demoEmail, "signup")
	var de *otp.DeliveryError
	if !errors.As(err, &de) || !de.Retryable() {
		t.Fatalf("err = %v, want retryable DeliveryError", err)
	}
}

func TestSignupFlow_FallbackThenSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RequestOTP(ctx, "Farmer@Demo.com", "signup")
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if res.Status != StatusSent || res.Channel != otp.ChannelFallback {
		t.Errorf("result = %+v, want sent via fallback", res)
	}
	if res.Identifier != demoEmail {
		t.Errorf("identifier = %q, want %q", res.Identifier, demoEmail)
	}
	entry, ok, _ := f.store.Get(ctx, demoEmail)
	if !ok || len(entry.Code) != 6 {
		t.Fatalf("stored entry = %+v ok=%v", entry, ok)
	}
	if ttl := entry.ExpiresAt.Sub(entry.IssuedAt); ttl != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", ttl)
	}
	code := f.messenger.code(demoEmail)
	if code != entry.Code {
		t.Fatalf("delivered code %q differs from stored %q", code, entry.Code)
	}

	sub, err := f.svc.SubmitOTP(ctx, demoEmail, code, "signup")
	if err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}
	if sub.Verdict != otp.VerdictValid || sub.Status != StatusValid {
		t.Errorf("submit = %+v, want verified", sub)
	}
	if sub.Token != "" || sub.Account != nil {
		t.Error("signup verification must not issue a session")
	}

	again, err := f.svc.SubmitOTP(ctx, demoEmail, code, "signup")
	if err != nil {
		t.Fatalf("repeat SubmitOTP: %v", err)
	}
	if again.Verdict != otp.VerdictExpired || again.Status != StatusExpired {
		t.Errorf("repeat submit = %+v, want expired", again)
	}
}

func TestSubmitOTP_WrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.RequestOTP(ctx, demoEmail, "signup"); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	code := f.messenger.code(demoEmail)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	sub, err := f.svc.SubmitOTP(ctx, demoEmail, wrong, "signup")
	if err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}
	if sub.Verdict != otp.VerdictInvalid {
		t.Errorf("verdict = %v, want invalid", sub.Verdict)
	}
	// The real code still works after a wrong guess.
	sub, err = f.svc.SubmitOTP(ctx, demoEmail, code, "signup")
	if err != nil || sub.Verdict != otp.VerdictValid {
		t.Errorf("submit = %+v err=%v, want valid", sub, err)
	}
}

func TestSubmitOTP_MalformedCode(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.SubmitOTP(context.Background(), demoEmail, "12ab", "signup"); !errors.Is(err, otp.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestLoginFlow_IssuesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.seed(t, demoPhone)

	if _, err := f.svc.RequestOTP(ctx, "09876543210", "login"); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	code := f.messenger.code(demoPhone)
	sub, err := f.svc.SubmitOTP(ctx, demoPhone, code, "login")
	if err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}
	if sub.Account == nil || sub.Account.ID != acct.ID {
		t.Fatalf("account = %+v, want %s", sub.Account, acct.ID)
	}
	sess, err := f.tokens.ValidateSession(sub.Token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if sess.AccountID != acct.ID || sess.Identifier != demoPhone || sess.Role != "farmer" {
		t.Errorf("session = %+v", sess)
	}
	if !sess.ExpiresAt.Equal(sub.ExpiresAt) {
		t.Errorf("expires = %v, want %v", sess.ExpiresAt, sub.ExpiresAt)
	}
	got := f.audit.actions()
	want := []string{"otp_requested", "otp_verified", "login_succeeded"}
	if len(got) != len(want) {
		t.Fatalf("audit actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("audit[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCompleteSignup_RequiresVerification(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CompleteSignup(context.Background(), demoEmail, Profile{Name: "Asha Patil"})
	if !errors.Is(err, ErrSignupNotVerified) {
		t.Fatalf("err = %v, want ErrSignupNotVerified", err)
	}
}

func verifySignup(t *testing.T, f *fixture, id identifier.Identifier) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.RequestOTP(ctx, id.String(), "signup"); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if sub, err := f.svc.SubmitOTP(ctx, id.String(), f.messenger.code(id), "signup"); err != nil || sub.Verdict != otp.VerdictValid {
		t.Fatalf("SubmitOTP = %+v, %v", sub, err)
	}
}

func TestCompleteSignup_CreatesAccountAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	verifySignup(t, f, demoEmail)

	res, err := f.svc.CompleteSignup(ctx, demoEmail, Profile{
		Name:     " Asha Patil ",
		Phone:    "98765 43210",
		District: "Pune",
		Taluka:   "Haveli",
		Village:  "Wagholi",
	})
	if err != nil {
		t.Fatalf("CompleteSignup: %v", err)
	}
	a := res.Account
	if a.Email != demoEmail || a.Phone != demoPhone || a.Name != "Asha Patil" {
		t.Errorf("account = %+v", a)
	}
	if a.Role != domain.RoleFarmer || !a.Verified {
		t.Errorf("role=%q verified=%v, want farmer/true", a.Role, a.Verified)
	}
	stored, _ := f.accounts.GetByIdentifier(ctx, demoEmail)
	if stored == nil || stored.ID != a.ID {
		t.Fatalf("account not persisted")
	}
	if _, err := f.tokens.ValidateSession(res.Token); err != nil {
		t.Errorf("token: %v", err)
	}

	// Marker is single-use.
	if _, err := f.svc.CompleteSignup(ctx, demoEmail, Profile{Name: "Asha Patil"}); !errors.Is(err, ErrSignupNotVerified) {
		t.Errorf("second CompleteSignup err = %v, want ErrSignupNotVerified", err)
	}
}

func TestCompleteSignup_ProfileValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		profile Profile
	}{
		{"missing name", Profile{}},
		{"bad email", Profile{Name: "Asha", Email: "not-an-email"}},
		{"unknown role", Profile{Name: "Asha", Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CompleteSignup(context.Background(), demoPhone, tt.profile); !errors.Is(err, otp.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestCompleteSignup_AccountCreatedMeanwhile(t *testing.T) {
	f := newFixture(t)
	verifySignup(t, f, demoPhone)
	f.seed(t, demoPhone)

	_, err := f.svc.CompleteSignup(context.Background(), demoPhone, Profile{Name: "Asha Patil", Role: "officer"})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestCompleteSignup_MarkerExpires(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.svc.markers = otp.NewMemoryStore(1).WithClock(func() time.Time { return now })
	verifySignup(t, f, demoPhone)

	now = now.Add(DefaultMarkerTTL + time.Second)
	if _, err := f.svc.CompleteSignup(context.Background(), demoPhone, Profile{Name: "Asha Patil"}); !errors.Is(err, ErrSignupNotVerified) {
		t.Errorf("err = %v, want ErrSignupNotVerified", err)
	}
}

func TestRequestOTP_SecondaryContactCountsAsAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	verifySignup(t, f, demoPhone)
	if _, err := f.svc.CompleteSignup(ctx, demoPhone, Profile{Name: "Asha Patil", Email: "Farmer@Demo.com"}); err != nil {
		t.Fatalf("CompleteSignup: %v", err)
	}

	if _, err := f.svc.RequestOTP(ctx, demoEmail, "signup"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("signup via profile email err = %v, want ErrAccountExists", err)
	}
	if f.messenger.code(demoEmail) != "" {
		t.Error("code delivered to an identifier that already has an account")
	}

	if _, err := f.svc.RequestOTP(ctx, demoEmail, "login"); err != nil {
		t.Fatalf("login via profile email: %v", err)
	}
	sub, err := f.svc.SubmitOTP(ctx, demoEmail, f.messenger.code(demoEmail), "login")
	if err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}
	if sub.Account == nil || sub.Account.Phone != demoPhone {
		t.Errorf("account = %+v, want the phone account", sub.Account)
	}
}

func TestSubmitOTP_PurposeSwitch(t *testing.T) {
	t.Run("login code submitted for signup", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.seed(t, demoPhone)
		if _, err := f.svc.RequestOTP(ctx, demoPhone, "login"); err != nil {
			t.Fatalf("RequestOTP: %v", err)
		}
		_, err := f.svc.SubmitOTP(ctx, demoPhone, f.messenger.code(demoPhone), "signup")
		if !errors.Is(err, ErrAccountExists) {
			t.Fatalf("err = %v, want ErrAccountExists", err)
		}
		if _, ok, _ := f.svc.markers.Get(ctx, demoPhone); ok {
			t.Error("signup marker stored for an existing account")
		}
	})

	t.Run("signup code submitted for login", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		if _, err := f.svc.RequestOTP(ctx, demoEmail, "signup"); err != nil {
			t.Fatalf("RequestOTP: %v", err)
		}
		sub, err := f.svc.SubmitOTP(ctx, demoEmail, f.messenger.code(demoEmail), "login")
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("SubmitOTP = %+v, %v; want ErrAccountNotFound", sub, err)
		}
	})
}

type vanishingAccounts struct {
	*accountrepo.MemoryRepository
	gone bool
}

func (v *vanishingAccounts) GetByIdentifier(ctx context.Context, id string) (*domain.Account, error) {
	if v.gone {
		return nil, nil
	}
	return v.MemoryRepository.GetByIdentifier(ctx, id)
}

func TestSubmitOTP_AccountRemovedBeforeLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, demoPhone)
	accounts := &vanishingAccounts{MemoryRepository: f.accounts}
	f.svc.accounts = accounts

	if _, err := f.svc.RequestOTP(ctx, demoPhone, "login"); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	accounts.gone = true
	_, err := f.svc.SubmitOTP(ctx, demoPhone, f.messenger.code(demoPhone), "login")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
	for _, a := range f.audit.actions() {
		if a == "login_succeeded" {
			t.Error("login_succeeded recorded for a removed account")
		}
	}
}
