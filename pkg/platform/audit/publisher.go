package audit

import (
	"context"
	"time"
)

// Store persists audit events. Implementations: an in-memory ring for tests
// and development, and a postgres transactional outbox for production where
// the outbox worker ships rows to Kafka.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListByReference returns events about one domain object, oldest first.
	ListByReference(ctx context.Context, reference string) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
	now   func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithNow overrides the timestamp source; tests inject a fixed clock so
// event ordering assertions are deterministic.
func WithNow(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records one event. The category is derived from the action so the
// eventCategories map stays the single source of truth.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	return p.store.Append(ctx, event)
}

// List returns the audit trail for one domain object.
func (p *Publisher) List(ctx context.Context, reference string) ([]Event, error) {
	return p.store.ListByReference(ctx, reference)
}
