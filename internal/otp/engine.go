package otp

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is how long a locally issued code stays valid.
	DefaultTTL = 10 * time.Minute
	// DefaultProviderTimeout bounds each call to the primary provider or the direct-message channel.
	DefaultProviderTimeout = 5 * time.Second
)

// ErrStoreUnavailable is returned when the code store cannot be read or written during verification.
var ErrStoreUnavailable = errors.New("otp store unavailable")

// Config tunes an Engine. Zero values take the defaults above.
type Config struct {
	TTL             time.Duration
	ProviderTimeout time.Duration
	Shards          int
	// BypassCode is accepted for any identifier in non-production builds. Empty disables it.
	BypassCode string
}

// Engine issues codes through the Dispatcher path (Send) and checks them through the Verifier path (Verify).
// Send and Verify for the same identifier are serialized within a process; different
// identifiers never wait on each other.
type Engine struct {
	primary   Provider
	messenger Messenger
	store     Store
	ledger    *Ledger
	locks     *keyedLocker

	ttl        time.Duration
	timeout    time.Duration
	bypassCode string
	generate   func() (string, error)
	logger     zerolog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithGenerator replaces GenerateCode. Intended for tests.
func WithGenerator(fn func() (string, error)) Option {
	return func(e *Engine) { e.generate = fn }
}

// WithLedger shares a Ledger between engines, e.g. one backed by Redis.
func WithLedger(l *Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// NewEngine returns an Engine. primary may be nil (fallback only); messenger may be nil (primary only).
func NewEngine(store Store, primary Provider, messenger Messenger, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	e := &Engine{
		primary:    primary,
		messenger:  messenger,
		store:      store,
		ledger:     NewMemoryLedger(cfg.Shards),
		locks:      newKeyedLocker(),
		ttl:        cfg.TTL,
		timeout:    cfg.ProviderTimeout,
		bypassCode: cfg.BypassCode,
		generate:   GenerateCode,
		logger:     logger.With().Str("component", "otp").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TTL returns the lifetime of issued codes.
func (e *Engine) TTL() time.Duration { return e.ttl }

// Ledger returns the engine's delivery ledger.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Sweep evicts expired codes from the store and expired delivery records from the ledger.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	n, err := e.ledger.evictExpired(ctx)
	if err != nil {
		return n, err
	}
	m, err := e.store.EvictExpired(ctx)
	return n + m, err
}

// RunSweeper calls Sweep every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	RunSweeper(ctx, sweepFunc(e.Sweep), interval, e.logger)
}

// sweepFunc adapts a sweep function to Evictor.
type sweepFunc func(ctx context.Context) (int, error)

func (f sweepFunc) EvictExpired(ctx context.Context) (int, error) { return f(ctx) }
