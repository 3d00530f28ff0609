// Package postgres implements audit.Store using the transactional outbox
// pattern. Events are written to the outbox table and published to Kafka by
// the outbox worker; Kafka is the source of truth for downstream consumers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "custodia/pkg/domain"
	audit "custodia/pkg/platform/audit"
	txcontext "custodia/pkg/platform/tx"
)

const Schema = `
CREATE TABLE IF NOT EXISTS audit_outbox (
	id           UUID PRIMARY KEY,
	category     TEXT        NOT NULL,
	reference    TEXT        NOT NULL,
	payload      JSONB       NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS audit_outbox_unpublished
	ON audit_outbox (occurred_at) WHERE published_at IS NULL;
CREATE INDEX IF NOT EXISTS audit_outbox_reference
	ON audit_outbox (reference, occurred_at);
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the outbox table. Called once at startup; the core
// carries no schema versioning.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for deserialization by consumers.
type outboxPayload struct {
	ID        string `json:"ID"`
	Category  string `json:"Category"`
	Timestamp string `json:"Timestamp"`
	Actor     string `json:"Actor,omitempty"`
	Subject   string `json:"Subject,omitempty"`
	Action    string `json:"Action"`
	Amount    int64  `json:"Amount,omitempty"`
	Reference string `json:"Reference,omitempty"`
	Reason    string `json:"Reason,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action so the eventCategories map stays
	// the source of truth.
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    event.Action,
		Amount:    int64(event.Amount),
		Reference: event.Reference,
		Reason:    event.Reason,
		RequestID: event.RequestID,
	}
	if !event.Actor.IsZero() {
		payload.Actor = event.Actor.String()
	}
	if !event.Subject.IsZero() {
		payload.Subject = event.Subject.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx,
		`INSERT INTO audit_outbox (id, category, reference, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		eventID, string(category), event.Reference, body, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit outbox row: %w", err)
	}
	return nil
}

// ListByReference reads back events about one domain object, oldest first.
func (s *Store) ListByReference(ctx context.Context, reference string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM audit_outbox WHERE reference = $1 ORDER BY occurred_at`,
		reference)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan audit outbox row: %w", err)
		}
		var p outboxPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("unmarshal audit outbox payload: %w", err)
		}
		event := audit.Event{
			Category:  audit.EventCategory(p.Category),
			Action:    p.Action,
			Amount:    id.Amount(p.Amount),
			Reference: p.Reference,
			Reason:    p.Reason,
			RequestID: p.RequestID,
		}
		if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			event.Timestamp = ts
		}
		if p.Actor != "" {
			if actor, err := id.ParseAccountID(p.Actor); err == nil {
				event.Actor = actor
			}
		}
		if p.Subject != "" {
			if subject, err := id.ParseAccountID(p.Subject); err == nil {
				event.Subject = subject
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// NextUnpublished returns up to limit unpublished outbox rows, oldest first.
// Used by the outbox worker.
func (s *Store) NextUnpublished(ctx context.Context, limit int) ([]OutboxRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, payload FROM audit_outbox
		 WHERE published_at IS NULL ORDER BY occurred_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished outbox rows: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var row OutboxRow
		if err := rows.Scan(&row.ID, &row.Category, &row.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MarkPublished stamps rows as shipped so the worker never re-publishes.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE audit_outbox SET published_at = now() WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}

// OutboxRow is one pending audit event awaiting Kafka publication.
type OutboxRow struct {
	ID       uuid.UUID
	Category string
	Payload  []byte
}
