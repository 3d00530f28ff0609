//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "custodia/pkg/domain"
	audit "custodia/pkg/platform/audit"
	"custodia/pkg/platform/audit/store/postgres"
	"custodia/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.ExecContext(context.Background(), `TRUNCATE audit_outbox`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) event(action, reference string, at time.Time) audit.Event {
	return audit.Event{
		Timestamp: at,
		Actor:     id.NewAccountID(),
		Subject:   id.NewAccountID(),
		Action:    action,
		Amount:    id.Amount(1_000_000),
		Reference: reference,
		Reason:    "integration test",
		RequestID: "req-1",
	}
}

// ============================================================================
// Append / ListByReference
// ============================================================================

func (s *PostgresStoreSuite) TestAppendAndListByReference() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := s.event("deposit_recorded", "donor/abc", base)
	second := s.event("withdrawal_recorded", "donor/abc", base.Add(time.Second))
	other := s.event("mint_recorded", "project/1", base)

	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, second))
	s.Require().NoError(s.store.Append(ctx, other))

	events, err := s.store.ListByReference(ctx, "donor/abc")
	s.Require().NoError(err)
	s.Require().Len(events, 2)

	s.Equal("deposit_recorded", events[0].Action)
	s.Equal("withdrawal_recorded", events[1].Action)
	s.Equal(first.Actor, events[0].Actor)
	s.Equal(first.Subject, events[0].Subject)
	s.Equal(id.Amount(1_000_000), events[0].Amount)
	s.Equal("integration test", events[0].Reason)
	s.Equal("req-1", events[0].RequestID)
	s.True(events[0].Timestamp.Equal(first.Timestamp))
}

func (s *PostgresStoreSuite) TestListByReferenceEmpty() {
	events, err := s.store.ListByReference(context.Background(), "project/999")
	s.Require().NoError(err)
	s.Empty(events)
}

// ============================================================================
// Outbox worker queries
// ============================================================================

func (s *PostgresStoreSuite) TestNextUnpublishedOrdersOldestFirst() {
	ctx := context.Background()
	base := time.Now().UTC()

	s.Require().NoError(s.store.Append(ctx, s.event("allocation_executed", "allocation/1", base.Add(time.Second))))
	s.Require().NoError(s.store.Append(ctx, s.event("allocation_signed", "allocation/1", base)))

	rows, err := s.store.NextUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)

	s.Contains(string(rows[0].Payload), "allocation_signed")
	s.Contains(string(rows[1].Payload), "allocation_executed")
}

func (s *PostgresStoreSuite) TestNextUnpublishedHonorsLimit() {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Append(ctx, s.event("mint_recorded", "project/1", time.Now().UTC())))
	}

	rows, err := s.store.NextUnpublished(ctx, 3)
	s.Require().NoError(err)
	s.Len(rows, 3)
}

func (s *PostgresStoreSuite) TestMarkPublishedExcludesRows() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, s.event("tokens_released", "escrow/1/tx/1", time.Now().UTC())))
	s.Require().NoError(s.store.Append(ctx, s.event("funds_returned", "escrow/1", time.Now().UTC())))

	rows, err := s.store.NextUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)

	s.Require().NoError(s.store.MarkPublished(ctx, []uuid.UUID{rows[0].ID}))

	remaining, err := s.store.NextUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(remaining, 1)
	s.Equal(rows[1].ID, remaining[0].ID)

	// Published rows stay readable for audit queries.
	events, err := s.store.ListByReference(ctx, "escrow/1/tx/1")
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *PostgresStoreSuite) TestMarkPublishedNoIDs() {
	s.Require().NoError(s.store.MarkPublished(context.Background(), nil))
}
