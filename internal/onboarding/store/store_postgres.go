package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"veriflow/internal/onboarding/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
	"veriflow/pkg/platform/tx"
)

// PostgresStore persists workflow states in PostgreSQL. History and
// validation snapshots live in jsonb columns; the version column backs the
// compare-and-swap guard.
//
// Schema:
//
//	CREATE TABLE onboarding_workflows (
//	    client_id       uuid PRIMARY KEY,
//	    current_step    text NOT NULL,
//	    step_history    jsonb NOT NULL,
//	    last_validation jsonb NOT NULL,
//	    version         bigint NOT NULL,
//	    created_at      timestamptz NOT NULL,
//	    updated_at      timestamptz NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed workflow store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, state *models.WorkflowState) error {
	history, validation, err := encodeJSON(state)
	if err != nil {
		return err
	}
	q := tx.Resolve(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO onboarding_workflows
			(client_id, current_step, step_history, last_validation, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6)`,
		state.ClientID.String(), string(state.CurrentStep), history, validation,
		state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("workflow for client %s already exists: %w", state.ClientID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create workflow: %w", err)
	}
	state.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, clientID id.ClientID) (*models.WorkflowState, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		SELECT client_id, current_step, step_history, last_validation, version, created_at, updated_at
		FROM onboarding_workflows
		WHERE client_id = $1`,
		clientID.String(),
	)
	return scanWorkflow(row)
}

func (s *PostgresStore) UpdateCAS(ctx context.Context, state *models.WorkflowState, expectedVersion uint64) error {
	history, validation, err := encodeJSON(state)
	if err != nil {
		return err
	}
	q := tx.Resolve(ctx, s.db)
	result, err := q.ExecContext(ctx, `
		UPDATE onboarding_workflows
		SET current_step = $1, step_history = $2, last_validation = $3,
		    version = version + 1, updated_at = $4
		WHERE client_id = $5 AND version = $6`,
		string(state.CurrentStep), history, validation, state.UpdatedAt,
		state.ClientID.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing row.
		if _, getErr := s.Get(ctx, state.ClientID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("workflow for client %s moved past version %d: %w",
			state.ClientID, expectedVersion, sentinel.ErrConflict)
	}
	state.Version = expectedVersion + 1
	return nil
}

func encodeJSON(state *models.WorkflowState) (history, validation []byte, err error) {
	history, err = json.Marshal(state.StepHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("encode step history: %w", err)
	}
	validation, err = json.Marshal(state.LastValidation)
	if err != nil {
		return nil, nil, fmt.Errorf("encode validation snapshot: %w", err)
	}
	return history, validation, nil
}

func scanWorkflow(row *sql.Row) (*models.WorkflowState, error) {
	var (
		state      models.WorkflowState
		clientID   string
		step       string
		history    []byte
		validation []byte
	)
	err := row.Scan(&clientID, &step, &history, &validation, &state.Version, &state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	parsed, err := id.ParseClientID(clientID)
	if err != nil {
		return nil, fmt.Errorf("corrupt client id %q: %w", clientID, err)
	}
	state.ClientID = parsed
	state.CurrentStep = models.Step(step)
	if err := json.Unmarshal(history, &state.StepHistory); err != nil {
		return nil, fmt.Errorf("decode step history: %w", err)
	}
	if err := json.Unmarshal(validation, &state.LastValidation); err != nil {
		return nil, fmt.Errorf("decode validation snapshot: %w", err)
	}
	return &state, nil
}
