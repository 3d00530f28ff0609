//go:build integration

package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "custodia/pkg/domain"
	audit "custodia/pkg/platform/audit"
	"custodia/pkg/platform/audit/store/postgres"
	"custodia/pkg/platform/audit/worker"
	"custodia/pkg/testutil/containers"
)

const workerTopic = "custodia.audit.worker-test"

// WorkerSuite drives the full outbox pipeline: events appended to postgres,
// drained by the worker, and read back from the broker.
type WorkerSuite struct {
	suite.Suite

	pg       *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	store    *postgres.Store
}

func TestWorkerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.redpanda = containers.NewRedpandaContainer(s.T())
	s.store = postgres.New(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *WorkerSuite) SetupTest() {
	_, err := s.pg.DB.Exec("TRUNCATE audit_outbox")
	s.Require().NoError(err)
}

func (s *WorkerSuite) TestPublishesOutboxToBroker() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := worker.NewKafkaClient(ctx, []string{s.redpanda.Broker}, workerTopic)
	s.Require().NoError(err)
	defer client.Close()

	publisher := audit.NewPublisher(s.store)
	actor := id.NewAccountID()
	for i := int64(1); i <= 3; i++ {
		s.Require().NoError(publisher.Emit(ctx, audit.Event{
			Actor:     actor,
			Action:    string(audit.EventDepositRecorded),
			Amount:    id.Amount(100 * i),
			Reference: "donor/" + actor.String(),
		}))
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := worker.New(s.store, client, workerTopic, logger, worker.WithPollInterval(50*time.Millisecond))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(runCtx)
	}()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(workerTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var records []*kgo.Record
	deadline := time.Now().Add(time.Minute)
	for len(records) < 3 && time.Now().Before(deadline) {
		pollCtx, pollCancel := context.WithTimeout(ctx, 5*time.Second)
		fetches := consumer.PollFetches(pollCtx)
		pollCancel()
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	s.Require().Len(records, 3)

	s.Run("records carry the event payload keyed by category", func() {
		s.Equal([]byte(audit.CategoryCompliance), records[0].Key)

		var payload struct {
			Action string `json:"Action"`
			Actor  string `json:"Actor"`
			Amount int64  `json:"Amount"`
		}
		s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
		s.Equal(string(audit.EventDepositRecorded), payload.Action)
		s.Equal(actor.String(), payload.Actor)
		s.Equal(int64(100), payload.Amount)
	})

	s.Run("published rows leave the unpublished queue", func() {
		var pending []postgres.OutboxRow
		for time.Now().Before(deadline) {
			pending, err = s.store.NextUnpublished(ctx, 10)
			s.Require().NoError(err)
			if len(pending) == 0 {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		s.Empty(pending)
	})

	stop()
	<-done
}
