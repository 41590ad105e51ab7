package otp

import (
	"context"
	"strings"
	"time"

	"haritsetu/backend/internal/identifier"
)

// DefaultLedgerPrefix namespaces delivery records in a shared Redis.
const DefaultLedgerPrefix = "ledger:"

// DeliveryResult records which channel handled a send.
type DeliveryResult struct {
	Channel     Channel
	ProviderRef string
}

// Ledger remembers the channel of the last successful delivery per identifier, so the
// Verifier knows whether to ask the primary provider or the local store first.
// Records live in a Store under the same TTL as the code they describe; backing the
// ledger with the same kind of store as the codes lets every instance see them.
type Ledger struct {
	store Store
}

// NewLedger returns a Ledger that keeps its records in store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// NewMemoryLedger returns a process-local Ledger.
func NewMemoryLedger(shards int) *Ledger {
	return NewLedger(NewMemoryStore(shards))
}

func (l *Ledger) record(ctx context.Context, id identifier.Identifier, r DeliveryResult, ttl time.Duration) error {
	return l.store.Put(ctx, id, r.Channel.String()+"|"+r.ProviderRef, ttl)
}

// Last returns the last delivery for id if it has not expired.
func (l *Ledger) Last(ctx context.Context, id identifier.Identifier) (DeliveryResult, bool, error) {
	e, ok, err := l.store.Get(ctx, id)
	if err != nil || !ok {
		return DeliveryResult{}, false, err
	}
	channel, ref, _ := strings.Cut(e.Code, "|")
	r := DeliveryResult{Channel: parseChannel(channel), ProviderRef: ref}
	if r.Channel == ChannelNone {
		return DeliveryResult{}, false, nil
	}
	return r, true, nil
}

func (l *Ledger) forget(ctx context.Context, id identifier.Identifier) error {
	return l.store.Consume(ctx, id)
}

func (l *Ledger) evictExpired(ctx context.Context) (int, error) {
	return l.store.EvictExpired(ctx)
}

func parseChannel(s string) Channel {
	switch s {
	case "primary":
		return ChannelPrimary
	case "fallback":
		return ChannelFallback
	default:
		return ChannelNone
	}
}
