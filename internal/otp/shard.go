package otp

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is the shard count used when a non-positive count is requested.
const DefaultShards = 32

// shardIndex maps a key onto [0, n) with FNV-1a.
func shardIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// shardedMap is a map partitioned by key hash, one mutex per shard, so operations on
// different keys rarely contend and operations on the same key are linearizable.
type shardedMap[V any] struct {
	shards []mapShard[V]
}

type mapShard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func newShardedMap[V any](n int) *shardedMap[V] {
	if n <= 0 {
		n = DefaultShards
	}
	s := &shardedMap[V]{shards: make([]mapShard[V], n)}
	for i := range s.shards {
		s.shards[i].m = make(map[string]V)
	}
	return s
}

func (s *shardedMap[V]) shard(key string) *mapShard[V] {
	return &s.shards[shardIndex(key, len(s.shards))]
}

// with runs fn while holding the key's shard lock.
func (s *shardedMap[V]) with(key string, fn func(m map[string]V)) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fn(sh.m)
}

// sweep calls drop for every entry shard by shard and deletes those for which it returns true.
func (s *shardedMap[V]) sweep(drop func(V) bool) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.m {
			if drop(v) {
				delete(sh.m, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *shardedMap[V]) size() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

// keyedLocker serializes work per key (e.g. a send racing a verify for the same identifier).
// Each key gets its own mutex, dropped once nobody holds or waits for it, so a slow
// provider call for one identifier never delays another.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*keyLock)}
}

func (l *keyedLocker) lock(key string) func() {
	l.mu.Lock()
	k, ok := l.locks[key]
	if !ok {
		k = &keyLock{}
		l.locks[key] = k
	}
	k.refs++
	l.mu.Unlock()

	k.Lock()
	return func() {
		k.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyedLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
