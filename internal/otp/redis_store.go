package otp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"haritsetu/backend/internal/identifier"
)

// DefaultRedisPrefix namespaces OTP keys in a shared Redis.
const DefaultRedisPrefix = "otp:"

// RedisStore is a Store backed by Redis so several server instances share OTP state.
// Redis key expiry does the sweeping; Get still checks ExpiresAt.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	nowF   func() time.Time
}

type redisEntry struct {
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisStore returns a RedisStore using client. prefix defaults to DefaultRedisPrefix.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) key(id identifier.Identifier) string {
	return s.prefix + string(id)
}

// Put writes the entry with SET ... PX ttl, replacing any previous value.
func (s *RedisStore) Put(ctx context.Context, id identifier.Identifier, code string, ttl time.Duration) error {
	now := s.nowF()
	raw, err := json.Marshal(redisEntry{Code: code, IssuedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(id), raw, ttl).Err()
}

// Get reads the entry for id; a missing key or an expired entry reports ok=false.
func (s *RedisStore) Get(ctx context.Context, id identifier.Identifier) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var re redisEntry
	if err := json.Unmarshal(raw, &re); err != nil {
		return Entry{}, false, err
	}
	if s.nowF().After(re.ExpiresAt) {
		return Entry{}, false, nil
	}
	return Entry{Identifier: id, Code: re.Code, IssuedAt: re.IssuedAt, ExpiresAt: re.ExpiresAt}, true, nil
}

// Consume deletes the key for id.
func (s *RedisStore) Consume(ctx context.Context, id identifier.Identifier) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// EvictExpired is a no-op: Redis expires keys itself.
func (s *RedisStore) EvictExpired(ctx context.Context) (int, error) {
	return 0, nil
}
