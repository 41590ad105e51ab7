package otp

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"haritsetu/backend/internal/identifier"
)

// Entry is a locally issued code for one identifier.
type Entry struct {
	Identifier identifier.Identifier
	Code       string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Store holds at most one live code per identifier.
type Store interface {
	// Put overwrites any existing entry for id; the entry expires ttl from now.
	Put(ctx context.Context, id identifier.Identifier, code string, ttl time.Duration) error
	// Get returns the entry for id if present and not expired. Expired entries are treated as absent.
	Get(ctx context.Context, id identifier.Identifier) (Entry, bool, error)
	// Consume removes the entry for id unconditionally. Removing a missing entry is not an error.
	Consume(ctx context.Context, id identifier.Identifier) error
	// EvictExpired removes expired entries and returns how many were removed.
	EvictExpired(ctx context.Context) (int, error)
}

// MemoryStore is an in-process Store partitioned by identifier hash with per-shard locking.
type MemoryStore struct {
	entries *shardedMap[Entry]
	nowF    func() time.Time
}

// NewMemoryStore returns an empty MemoryStore with the given shard count (DefaultShards if <= 0).
func NewMemoryStore(shards int) *MemoryStore {
	return &MemoryStore{
		entries: newShardedMap[Entry](shards),
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the store's time source. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.nowF = now
	return s
}

// Put stores code for id until now+ttl, replacing any previous entry.
func (s *MemoryStore) Put(ctx context.Context, id identifier.Identifier, code string, ttl time.Duration) error {
	now := s.nowF()
	e := Entry{Identifier: id, Code: code, IssuedAt: now, ExpiresAt: now.Add(ttl)}
	s.entries.with(string(id), func(m map[string]Entry) {
		m[string(id)] = e
	})
	return nil
}

// Get returns the entry for id if present and now <= ExpiresAt. Expired entries are removed lazily.
func (s *MemoryStore) Get(ctx context.Context, id identifier.Identifier) (Entry, bool, error) {
	var (
		e  Entry
		ok bool
	)
	now := s.nowF()
	s.entries.with(string(id), func(m map[string]Entry) {
		e, ok = m[string(id)]
		if ok && now.After(e.ExpiresAt) {
			delete(m, string(id))
			ok = false
		}
	})
	if !ok {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Consume deletes the entry for id.
func (s *MemoryStore) Consume(ctx context.Context, id identifier.Identifier) error {
	s.entries.with(string(id), func(m map[string]Entry) {
		delete(m, string(id))
	})
	return nil
}

// EvictExpired removes every expired entry.
func (s *MemoryStore) EvictExpired(ctx context.Context) (int, error) {
	now := s.nowF()
	return s.entries.sweep(func(e Entry) bool { return now.After(e.ExpiresAt) }), nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	return s.entries.size()
}

// Evictor removes expired state.
type Evictor interface {
	EvictExpired(ctx context.Context) (int, error)
}

// RunSweeper calls EvictExpired every interval until ctx is done. It bounds memory growth;
// correctness does not depend on it because Get filters by expiry.
func RunSweeper(ctx context.Context, store Evictor, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.EvictExpired(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("otp: sweep failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int("evicted", n).Msg("otp: swept expired codes")
			}
		}
	}
}
