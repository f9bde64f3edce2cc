package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"veriflow/internal/approval/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/platform/tx"
)

// PostgresStore persists approval records in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE approval_records (
//	    id               uuid PRIMARY KEY,
//	    client_id        uuid NOT NULL,
//	    status           text NOT NULL,
//	    requested_at     timestamptz NOT NULL,
//	    reviewed_at      timestamptz,
//	    reviewer_id      uuid,
//	    notes            text NOT NULL DEFAULT '',
//	    rejection_reason text NOT NULL DEFAULT ''
//	);
//	CREATE UNIQUE INDEX approval_records_pending_client
//	    ON approval_records (client_id) WHERE status = 'PENDING_APPROVAL';
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed approval store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePending(ctx context.Context, record *models.ApprovalRecord) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO approval_records (id, client_id, status, requested_at)
		VALUES ($1, $2, $3, $4)`,
		record.ID.String(), record.ClientID.String(), string(record.Status), record.RequestedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("pending approval for client %s already exists: %w", record.ClientID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create approval record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindPendingByClient(ctx context.Context, clientID id.ClientID) (*models.ApprovalRecord, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		SELECT id, client_id, status, requested_at, reviewed_at, reviewer_id, notes, rejection_reason
		FROM approval_records
		WHERE client_id = $1 AND status = $2`,
		clientID.String(), string(models.StatusPendingApproval),
	)
	record, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Review applies the decision with a guarded UPDATE: only a record still in
// PENDING_APPROVAL is touched, so concurrent reviews resolve to one winner.
func (s *PostgresStore) Review(ctx context.Context, clientID id.ClientID, outcome models.Outcome, reviewer id.ReviewerID, notes, rejectionReason string, now time.Time) (*models.ApprovalRecord, error) {
	status := models.StatusApproved
	if outcome == models.OutcomeReject {
		status = models.StatusRejected
	}
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		UPDATE approval_records
		SET status = $1, reviewed_at = $2, reviewer_id = $3, notes = $4, rejection_reason = $5
		WHERE client_id = $6 AND status = $7
		RETURNING id, client_id, status, requested_at, reviewed_at, reviewer_id, notes, rejection_reason`,
		string(status), now, reviewer.String(), notes, rejectionReason,
		clientID.String(), string(models.StatusPendingApproval),
	)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Either no record exists or it was already reviewed.
			if _, findErr := s.findLatestByClient(ctx, clientID); findErr == nil {
				return nil, fmt.Errorf("approval record already reviewed: %w", sentinel.ErrInvalidState)
			}
			return nil, fmt.Errorf("approval record for client %s: %w", clientID, sentinel.ErrNotFound)
		}
		return nil, err
	}
	return record, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status, offset, limit int) ([]*models.ApprovalRecord, int, error) {
	q := tx.Resolve(ctx, s.db)
	var total int
	if err := q.QueryRowContext(ctx, `
		SELECT count(*) FROM approval_records WHERE status = $1`,
		string(status),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count approval records: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, client_id, status, requested_at, reviewed_at, reviewer_id, notes, rejection_reason
		FROM approval_records
		WHERE status = $1
		ORDER BY requested_at ASC
		OFFSET $2 LIMIT $3`,
		string(status), offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list approval records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ApprovalRecord, 0, limit)
	for rows.Next() {
		record, err := scanRecordFromRows(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list approval records: %w", err)
	}
	return records, total, nil
}

func (s *PostgresStore) findLatestByClient(ctx context.Context, clientID id.ClientID) (*models.ApprovalRecord, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		SELECT id, client_id, status, requested_at, reviewed_at, reviewer_id, notes, rejection_reason
		FROM approval_records
		WHERE client_id = $1
		ORDER BY requested_at DESC
		LIMIT 1`,
		clientID.String(),
	)
	return scanRecord(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*models.ApprovalRecord, error) {
	record, err := scanFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval record not found: %w", sentinel.ErrNotFound)
	}
	return record, err
}

func scanRecordFromRows(rows *sql.Rows) (*models.ApprovalRecord, error) {
	return scanFrom(rows)
}

func scanFrom(scanner rowScanner) (*models.ApprovalRecord, error) {
	var (
		record     models.ApprovalRecord
		recordID   string
		clientID   string
		status     string
		reviewedAt sql.NullTime
		reviewerID sql.NullString
	)
	err := scanner.Scan(&recordID, &clientID, &status, &record.RequestedAt,
		&reviewedAt, &reviewerID, &record.Notes, &record.RejectionReason)
	if err != nil {
		return nil, err
	}
	parsedID, err := id.ParseApprovalID(recordID)
	if err != nil {
		return nil, fmt.Errorf("corrupt approval id %q: %w", recordID, err)
	}
	parsedClient, err := id.ParseClientID(clientID)
	if err != nil {
		return nil, fmt.Errorf("corrupt client id %q: %w", clientID, err)
	}
	record.ID = parsedID
	record.ClientID = parsedClient
	record.Status = models.Status(status)
	if reviewedAt.Valid {
		record.ReviewedAt = &reviewedAt.Time
	}
	if reviewerID.Valid {
		parsedReviewer, err := id.ParseReviewerID(reviewerID.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt reviewer id %q: %w", reviewerID.String, err)
		}
		record.ReviewerID = &parsedReviewer
	}
	return &record, nil
}
