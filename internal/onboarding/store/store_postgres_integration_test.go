//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriflow/internal/onboarding/models"
	valmodels "veriflow/internal/validation/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/testutil/containers"
)

const workflowSchema = `
CREATE TABLE onboarding_workflows (
    client_id       uuid PRIMARY KEY,
    current_step    text NOT NULL,
    step_history    jsonb NOT NULL,
    last_validation jsonb NOT NULL,
    version         bigint NOT NULL,
    created_at      timestamptz NOT NULL,
    updated_at      timestamptz NOT NULL
);`

func Test_PostgresStore_WorkflowRoundTrip(t *testing.T) {
	pg := containers.NewPostgresContainer(t, workflowSchema)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	state := models.NewWorkflowState(id.NewClientID(), now)
	company := valmodels.ValidationResult{
		Kind: valmodels.KindCompany, Identifier: "12345678",
		IsValid: true, Status: valmodels.StatusActive,
		Source: valmodels.SourceRegistry, ValidatedAt: now,
	}
	state.AttachValidation(&company, nil)

	require.NoError(t, store.Create(ctx, state))
	assert.Equal(t, uint64(1), state.Version)

	t.Run("duplicate create conflicts", func(t *testing.T) {
		err := store.Create(ctx, models.NewWorkflowState(state.ClientID, now))
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrConflict))
	})

	loaded, err := store.Get(ctx, state.ClientID)
	require.NoError(t, err)
	assert.Equal(t, models.StepSubmitted, loaded.CurrentStep)
	assert.Len(t, loaded.StepHistory, 1)
	require.NotNil(t, loaded.LastValidation.Company)
	assert.True(t, loaded.LastValidation.Company.IsValid)
	assert.Nil(t, loaded.LastValidation.Tax)

	t.Run("unknown client is not found", func(t *testing.T) {
		_, err := store.Get(ctx, id.NewClientID())
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})
}

func Test_PostgresStore_UpdateCAS(t *testing.T) {
	pg := containers.NewPostgresContainer(t, workflowSchema)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	state := models.NewWorkflowState(id.NewClientID(), now)
	require.NoError(t, store.Create(ctx, state))

	require.NoError(t, state.Apply(models.EventBeginVerification, now.Add(time.Second), nil))
	require.NoError(t, store.UpdateCAS(ctx, state, 1))
	assert.Equal(t, uint64(2), state.Version)

	t.Run("stale version loses the race", func(t *testing.T) {
		stale := state.Clone()
		err := store.UpdateCAS(ctx, stale, 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrConflict))
	})

	t.Run("unknown client is not found", func(t *testing.T) {
		ghost := models.NewWorkflowState(id.NewClientID(), now)
		err := store.UpdateCAS(ctx, ghost, 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	loaded, err := store.Get(ctx, state.ClientID)
	require.NoError(t, err)
	assert.Equal(t, models.StepVerification, loaded.CurrentStep)
	assert.Len(t, loaded.StepHistory, 2)
	assert.Equal(t, uint64(2), loaded.Version)
}

func Test_PostgresStore_ConcurrentCASSingleWinner(t *testing.T) {
	pg := containers.NewPostgresContainer(t, workflowSchema)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	state := models.NewWorkflowState(id.NewClientID(), now)
	require.NoError(t, store.Create(ctx, state))

	const racers = 8
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		go func() {
			candidate, err := store.Get(ctx, state.ClientID)
			if err != nil {
				wins <- false
				return
			}
			if err := candidate.Apply(models.EventBeginVerification, now.Add(time.Second), nil); err != nil {
				wins <- false
				return
			}
			wins <- store.UpdateCAS(ctx, candidate, 1) == nil
		}()
	}

	winners := 0
	for i := 0; i < racers; i++ {
		if <-wins {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	loaded, err := store.Get(ctx, state.ClientID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Version)
}
