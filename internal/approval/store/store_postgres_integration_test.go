//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriflow/internal/approval/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/platform/tx"
	"veriflow/pkg/testutil/containers"
)

const approvalSchema = `
CREATE TABLE approval_records (
    id               uuid PRIMARY KEY,
    client_id        uuid NOT NULL,
    status           text NOT NULL,
    requested_at     timestamptz NOT NULL,
    reviewed_at      timestamptz,
    reviewer_id      uuid,
    notes            text NOT NULL DEFAULT '',
    rejection_reason text NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX approval_records_pending_client
    ON approval_records (client_id) WHERE status = 'PENDING_APPROVAL';`

func Test_PostgresStore_ApprovalLifecycle(t *testing.T) {
	pg := containers.NewPostgresContainer(t, approvalSchema)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	clientID := id.NewClientID()
	record := models.NewPending(clientID, now)
	require.NoError(t, store.CreatePending(ctx, record))

	t.Run("second pending record for the client conflicts", func(t *testing.T) {
		err := store.CreatePending(ctx, models.NewPending(clientID, now))
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrConflict))
	})

	pending, err := store.FindPendingByClient(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, pending.ID)
	assert.Equal(t, models.StatusPendingApproval, pending.Status)

	reviewer := id.NewReviewerID()
	reviewedAt := now.Add(time.Hour)
	reviewed, err := store.Review(ctx, clientID, models.OutcomeApprove, reviewer, "checks out", "", reviewedAt)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedAt)
	assert.True(t, reviewed.ReviewedAt.Equal(reviewedAt))
	require.NotNil(t, reviewed.ReviewerID)
	assert.Equal(t, reviewer, *reviewed.ReviewerID)
	assert.Equal(t, "checks out", reviewed.Notes)

	t.Run("second review reads as invalid state", func(t *testing.T) {
		_, err := store.Review(ctx, clientID, models.OutcomeReject, reviewer, "", "changed my mind", reviewedAt)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
	})

	t.Run("review of an unknown client is not found", func(t *testing.T) {
		_, err := store.Review(ctx, id.NewClientID(), models.OutcomeApprove, reviewer, "", "", reviewedAt)
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("a reviewed client can re-enter the approval queue", func(t *testing.T) {
		err := store.CreatePending(ctx, models.NewPending(clientID, now.Add(2*time.Hour)))
		require.NoError(t, err)
	})
}

func Test_PostgresStore_ListByStatusPagination(t *testing.T) {
	pg := containers.NewPostgresContainer(t, approvalSchema)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	created := make([]*models.ApprovalRecord, 0, 5)
	for i := 0; i < 5; i++ {
		record := models.NewPending(id.NewClientID(), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.CreatePending(ctx, record))
		created = append(created, record)
	}

	page, total, err := store.ListByStatus(ctx, models.StatusPendingApproval, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, created[1].ID, page[0].ID)
	assert.Equal(t, created[2].ID, page[1].ID)

	_, total, err = store.ListByStatus(ctx, models.StatusApproved, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

// The decision path commits the review inside a transaction; a failure after
// the review must leave the record pending.
func Test_PostgresStore_ReviewRollsBackWithTransaction(t *testing.T) {
	pg := containers.NewPostgresContainer(t, approvalSchema)
	store := NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	clientID := id.NewClientID()
	require.NoError(t, store.CreatePending(ctx, models.NewPending(clientID, now)))

	runner := tx.NewSQLRunner(pg.DB)
	sentinelErr := errors.New("workflow transition refused")
	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := store.Review(ctx, clientID, models.OutcomeApprove, id.NewReviewerID(), "", "", now); err != nil {
			return err
		}
		return sentinelErr
	})
	require.ErrorIs(t, err, sentinelErr)

	pending, err := store.FindPendingByClient(ctx, clientID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, pending.Status)
}
