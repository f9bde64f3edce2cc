package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"veriflow/internal/validation/models"
	"veriflow/pkg/platform/sentinel"
)

const redisKeyPrefix = "validation:entry:"

// RedisStore is the distributed cache-entry store for deployments where
// multiple instances should share registry answers. Expiry is delegated to
// Redis key TTLs, so DeleteExpired is a no-op kept only to satisfy the store
// contract.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed cache store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) redisKey(kind models.IdentifierKind, identifier string) string {
	return redisKeyPrefix + string(kind) + ":" + identifier
}

func (s *RedisStore) Find(ctx context.Context, kind models.IdentifierKind, identifier string, now time.Time) (*models.CacheEntry, error) {
	raw, err := s.client.Get(ctx, s.redisKey(kind, identifier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cache entry %s:%s: %w", kind, identifier, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find cache entry: %w", err)
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	// The Redis TTL and the entry TTL are set together, but a paused clock
	// in tests or a redeployed TTL config can disagree; the computed expiry
	// stays authoritative.
	if entry.Expired(now) {
		return nil, fmt.Errorf("cache entry %s:%s expired: %w", kind, identifier, sentinel.ErrNotFound)
	}
	return &entry, nil
}

func (s *RedisStore) Save(ctx context.Context, kind models.IdentifierKind, identifier string, entry models.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(kind, identifier), raw, entry.TTL).Err(); err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts entries by key TTL.
func (s *RedisStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
