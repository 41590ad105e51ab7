// Package audit records OTP requests, verifications and signups for later review.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"haritsetu/backend/internal/audit/domain"
	auditrepo "haritsetu/backend/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes one audit event. Best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// Event is what callers report. Identifier must already be masked.
type Event struct {
	AccountID  string
	Identifier string
	Action     string
	Channel    string
	Outcome    string
	Metadata   string
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         zerolog.Logger
}

// NewLogger returns a Logger persisting to repo. ipExtractor may be nil; then IP is "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log zerolog.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one audit log entry. Uses a context detached from request cancellation.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:         uuid.New().String(),
		AccountID:  e.AccountID,
		Identifier: e.Identifier,
		Action:     e.Action,
		Channel:    e.Channel,
		Outcome:    e.Outcome,
		IP:         ip,
		Metadata:   e.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := l.repo.Create(writeCtx, entry); err != nil {
		l.log.Error().Err(err).Str("action", e.Action).Msg("audit: failed to log event")
	}
}
