package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"veriflow/pkg/platform/tx"
)

// PostgresStore persists audit events.
//
// Schema:
//
//	CREATE TABLE audit_events (
//	    id          uuid PRIMARY KEY,
//	    timestamp   timestamptz NOT NULL,
//	    action      text NOT NULL,
//	    entity_type text NOT NULL,
//	    entity_id   text NOT NULL,
//	    actor_id    text NOT NULL DEFAULT '',
//	    request_id  text NOT NULL DEFAULT '',
//	    detail      jsonb
//	);
//	CREATE INDEX audit_events_entity ON audit_events (entity_type, entity_id, timestamp);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append is idempotent on the event ID so replayed events from the Kafka sink
// do not duplicate rows.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}
	q := tx.Resolve(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_events (id, timestamp, action, entity_type, entity_id, actor_id, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Timestamp, string(event.Action),
		string(event.EntityType), event.EntityID, event.ActorID, event.RequestID, detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Event, error) {
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, timestamp, action, entity_type, entity_id, actor_id, request_id, detail
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY timestamp ASC`,
		string(entityType), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event  Event
			action string
			eType  string
			detail []byte
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &action, &eType,
			&event.EntityID, &event.ActorID, &event.RequestID, &detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = Action(action)
		event.EntityType = EntityType(eType)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
