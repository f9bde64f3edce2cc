package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"veriflow/internal/token/models"
	"veriflow/pkg/platform/sentinel"
)

const (
	tokenKeyPrefix = "token:value:"
	liveKeyPrefix  = "token:live:"
	// Redeemed and expired records are retained past expiry so a late
	// second redemption still answers AlreadyUsed / Expired instead of
	// NotFound.
	retentionAfterExpiry = 24 * time.Hour
)

// RedisStore is the distributed confirmation-token store. Record lifetime is
// bounded by Redis key TTLs; redemption rules are still computed from the
// record itself.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed token store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, token *models.ConfirmationToken) error {
	liveKey := liveKeyPrefix + token.ClientID.String() + ":" + string(token.Purpose)

	// Supersede the live predecessor, if any.
	prior, err := s.client.Get(ctx, liveKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("find live token: %w", err)
	}
	if err == nil {
		record, findErr := s.Find(ctx, prior)
		if findErr == nil && record.RedeemedAt == nil {
			record.Superseded = true
			if saveErr := s.save(ctx, record); saveErr != nil {
				return fmt.Errorf("supersede prior token: %w", saveErr)
			}
		}
	}

	if err := s.save(ctx, token); err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	ttl := time.Until(token.ExpiresAt) + retentionAfterExpiry
	if err := s.client.Set(ctx, liveKey, token.Token, ttl).Err(); err != nil {
		return fmt.Errorf("index live token: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, token string) (*models.ConfirmationToken, error) {
	raw, err := s.client.Get(ctx, tokenKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("confirmation token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	var record models.ConfirmationToken
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &record, nil
}

// Consume validates and redeems in a WATCH transaction so two concurrent
// redemptions of the same token resolve to exactly one success.
func (s *RedisStore) Consume(ctx context.Context, token string, now time.Time, sourceAddr string) (*models.ConfirmationToken, error) {
	var redeemed *models.ConfirmationToken
	key := tokenKeyPrefix + token

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("confirmation token not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("find token: %w", err)
		}
		var record models.ConfirmationToken
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("decode token: %w", err)
		}
		if err := record.ValidateForRedeem(now); err != nil {
			redeemed = &record
			return translateRedeemError(err)
		}
		record.MarkRedeemed(now, sourceAddr)

		encoded, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("encode token: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, time.Until(record.ExpiresAt)+retentionAfterExpiry)
			pipe.Del(ctx, liveKeyPrefix+record.ClientID.String()+":"+string(record.Purpose))
			return nil
		})
		if err != nil {
			return err
		}
		redeemed = &record
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// A concurrent redemption won the race.
		return nil, fmt.Errorf("concurrent redemption: %w", sentinel.ErrAlreadyUsed)
	}
	if err != nil {
		return redeemed, err
	}
	return redeemed, nil
}

// DeleteExpired is a no-op: Redis evicts token records by key TTL.
func (s *RedisStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) save(ctx context.Context, record *models.ConfirmationToken) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	ttl := time.Until(record.ExpiresAt) + retentionAfterExpiry
	return s.client.Set(ctx, tokenKeyPrefix+record.Token, encoded, ttl).Err()
}
