// Package worker ships audit events from the postgres outbox to Kafka.
// Kafka is the source of truth for downstream audit consumers; the outbox
// guarantees every emitted event is published at least once.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"custodia/pkg/platform/audit/store/postgres"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// Worker drains the audit outbox into a Kafka topic. One instance runs per
// server process; publication is idempotent from the consumer's perspective
// because event IDs are stable.
type Worker struct {
	outbox   *postgres.Store
	client   *kgo.Client
	topic    string
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// Option configures a Worker.
type Option func(*Worker)

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batch = n }
}

func New(outbox *postgres.Store, client *kgo.Client, topic string, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		outbox:   outbox,
		client:   client,
		topic:    topic,
		logger:   logger,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewKafkaClient connects to the brokers and makes sure the audit topic
// exists before the worker starts producing to it.
func NewKafkaClient(ctx context.Context, brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create audit topic: %w", err)
	}
	// An already-existing topic is fine; any other per-topic error is not.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("create audit topic %q: %w", topic, resp.Err)
	}
	return client, nil
}

// Run polls the outbox until the context is cancelled. Failed batches are
// retried on the next tick; rows are only marked published after Kafka
// acknowledges every record in the batch.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.publishBatch(ctx); err != nil {
				w.logger.ErrorContext(ctx, "audit outbox publish failed", "error", err)
			}
		}
	}
}

func (w *Worker) publishBatch(ctx context.Context) error {
	rows, err := w.outbox.NextUnpublished(ctx, w.batch)
	if err != nil {
		return fmt.Errorf("load outbox batch: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		records = append(records, &kgo.Record{
			Topic: w.topic,
			Key:   []byte(row.Category),
			Value: row.Payload,
		})
		ids = append(ids, row.ID)
	}

	if err := w.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit batch: %w", err)
	}
	if err := w.outbox.MarkPublished(ctx, ids); err != nil {
		return fmt.Errorf("mark audit batch published: %w", err)
	}

	w.logger.DebugContext(ctx, "audit outbox batch published", "count", len(rows))
	return nil
}
