//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriflow/internal/validation/models"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/testutil/containers"
)

func Test_RedisStore_RoundTrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedis(rc.Client)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := models.CacheEntry{
		Result: models.ValidationResult{
			Kind:        models.KindCompany,
			Identifier:  "12345678",
			IsValid:     true,
			Name:        "Jansen Webdesign",
			Status:      models.StatusActive,
			Source:      models.SourceRegistry,
			ValidatedAt: now,
		},
		InsertedAt: now,
		TTL:        time.Minute,
	}
	require.NoError(t, store.Save(ctx, models.KindCompany, "12345678", entry))

	loaded, err := store.Find(ctx, models.KindCompany, "12345678", now.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, loaded.Result.IsValid)
	assert.Equal(t, "Jansen Webdesign", loaded.Result.Name)
	assert.Equal(t, time.Minute, loaded.TTL)

	t.Run("absent key is not found", func(t *testing.T) {
		_, err := store.Find(ctx, models.KindCompany, "99999999", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("kinds do not collide", func(t *testing.T) {
		_, err := store.Find(ctx, models.KindTax, "12345678", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})
}

func Test_RedisStore_ComputedExpiryBeatsKeyTTL(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedis(rc.Client)
	ctx := context.Background()
	now := time.Now().UTC()

	// The Redis key lives a minute, but the computed expiry is authoritative:
	// a lookup past InsertedAt+TTL misses even while the key still exists.
	entry := models.CacheEntry{
		Result:     models.ValidationResult{Kind: models.KindTax, Identifier: "NL123456789B01"},
		InsertedAt: now.Add(-2 * time.Minute),
		TTL:        time.Minute,
	}
	require.NoError(t, rc.FlushAll(ctx))
	require.NoError(t, store.Save(ctx, models.KindTax, "NL123456789B01", entry))

	_, err := store.Find(ctx, models.KindTax, "NL123456789B01", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}
