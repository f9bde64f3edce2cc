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
)

var anchor = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func entryAt(insertedAt time.Time, ttl time.Duration) models.CacheEntry {
	return models.CacheEntry{
		Result: models.ValidationResult{
			Kind:        models.KindCompany,
			Identifier:  "12345678",
			IsValid:     true,
			Status:      models.StatusActive,
			Source:      models.SourceRegistry,
			ValidatedAt: insertedAt,
		},
		InsertedAt: insertedAt,
		TTL:        ttl,
	}
}

func Test_InMemoryStore_FindReturnsLiveEntry(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.KindCompany, "12345678", entryAt(anchor, 15*time.Minute)))

	entry, err := store.Find(ctx, models.KindCompany, "12345678", anchor.Add(14*time.Minute))
	require.NoError(t, err)
	assert.True(t, entry.Result.IsValid)
	assert.Equal(t, anchor, entry.InsertedAt)
}

func Test_InMemoryStore_FindMissesAreNotFound(t *testing.T) {
	store := NewInMemory()

	_, err := store.Find(context.Background(), models.KindCompany, "12345678", anchor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func Test_InMemoryStore_ExpiredEntryEvictedLazily(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.KindCompany, "12345678", entryAt(anchor, 15*time.Minute)))

	// Exactly at the TTL boundary the entry is still live.
	_, err := store.Find(ctx, models.KindCompany, "12345678", anchor.Add(15*time.Minute))
	require.NoError(t, err)

	_, err = store.Find(ctx, models.KindCompany, "12345678", anchor.Add(15*time.Minute+time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	// The expired entry is gone, so nothing remains for the sweeper.
	deleted, err := store.DeleteExpired(ctx, anchor.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func Test_InMemoryStore_KindsDoNotCollide(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.KindCompany, "shared-key", entryAt(anchor, time.Hour)))

	_, err := store.Find(ctx, models.KindTax, "shared-key", anchor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func Test_InMemoryStore_SaveRefreshesEntry(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.KindCompany, "12345678", entryAt(anchor, 15*time.Minute)))
	refreshed := anchor.Add(20 * time.Minute)
	require.NoError(t, store.Save(ctx, models.KindCompany, "12345678", entryAt(refreshed, 15*time.Minute)))

	entry, err := store.Find(ctx, models.KindCompany, "12345678", refreshed.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, refreshed, entry.InsertedAt)
}

func Test_InMemoryStore_DeleteExpiredSweepsAllShards(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	identifiers := []string{"00000001", "00000002", "00000003", "00000004", "00000005"}
	for _, identifier := range identifiers {
		require.NoError(t, store.Save(ctx, models.KindCompany, identifier, entryAt(anchor, 15*time.Minute)))
	}
	require.NoError(t, store.Save(ctx, models.KindTax, "NL123456789B01", entryAt(anchor, time.Hour)))

	deleted, err := store.DeleteExpired(ctx, anchor.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, len(identifiers), deleted)

	// The tax entry, with its longer TTL, survives the sweep.
	_, err = store.Find(ctx, models.KindTax, "NL123456789B01", anchor.Add(30*time.Minute))
	require.NoError(t, err)
}
