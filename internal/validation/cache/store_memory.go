// Package cache holds the CacheEntry stores backing the validation service.
// Entries are owned exclusively by the validation layer; nothing else writes
// them.
package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"veriflow/internal/validation/models"
	"veriflow/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound (wrapped) when no live entry exists for the key
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

const shardCount = 32

// InMemoryStore keeps cache entries in sharded maps so lookups for unrelated
// identifiers never contend on one lock. Expired entries are evicted lazily
// on the next Find for the same key, or eagerly by DeleteExpired.
type InMemoryStore struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// NewInMemory constructs an empty sharded in-memory cache store.
func NewInMemory() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]models.CacheEntry)}
	}
	return s
}

func cacheKey(kind models.IdentifierKind, identifier string) string {
	return string(kind) + ":" + identifier
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Find returns the live entry for the key, evicting it first when expired.
func (s *InMemoryStore) Find(_ context.Context, kind models.IdentifierKind, identifier string, now time.Time) (*models.CacheEntry, error) {
	key := cacheKey(kind, identifier)
	sh := s.shardFor(key)

	sh.mu.RLock()
	entry, ok := sh.entries[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cache entry %s: %w", key, sentinel.ErrNotFound)
	}
	if entry.Expired(now) {
		sh.mu.Lock()
		// Re-check under the write lock: a concurrent Save may have
		// refreshed the entry between the two lock acquisitions.
		if current, ok := sh.entries[key]; ok && current.Expired(now) {
			delete(sh.entries, key)
		}
		sh.mu.Unlock()
		return nil, fmt.Errorf("cache entry %s expired: %w", key, sentinel.ErrNotFound)
	}
	return &entry, nil
}

// Save stores or refreshes the entry for the key.
func (s *InMemoryStore) Save(_ context.Context, kind models.IdentifierKind, identifier string, entry models.CacheEntry) error {
	key := cacheKey(kind, identifier)
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.entries[key] = entry
	return nil
}

// DeleteExpired removes every entry past its TTL as of the given time.
// The time parameter is injected for testability (no hidden time.Now calls).
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	deleted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if entry.Expired(now) {
				delete(sh.entries, key)
				deleted++
			}
		}
		sh.mu.Unlock()
	}
	return deleted, nil
}
