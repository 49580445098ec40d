package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresSink persists audit events in PostgreSQL.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink constructs a PostgreSQL-backed audit sink.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS checkin_audit (
			id BIGSERIAL PRIMARY KEY,
			occurred_at TIMESTAMPTZ NOT NULL,
			request_id TEXT NOT NULL,
			natural_key TEXT NOT NULL,
			record_id TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			instance INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Append stores one event.
func (s *PostgresSink) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO checkin_audit
			(occurred_at, request_id, natural_key, record_id, outcome, instance, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.Timestamp, event.RequestID, event.NaturalKey,
		event.RecordID, event.Outcome, event.Instance, event.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListSince returns events at or after the given time in append order.
// Used operationally to reconcile kiosk traffic against the record store.
func (s *PostgresSink) ListSince(ctx context.Context, since time.Time) ([]Event, error) {
	query := `
		SELECT occurred_at, request_id, natural_key, record_id, outcome, instance, detail
		FROM checkin_audit
		WHERE occurred_at >= $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Timestamp, &e.RequestID, &e.NaturalKey,
			&e.RecordID, &e.Outcome, &e.Instance, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
