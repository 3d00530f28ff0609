package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "custodia/pkg/domain"
)

// RedisStore keeps day buckets in Redis so multiple server instances share
// the same daily limits. Keys expire two days after creation; the bucket key
// embeds the day index so stale buckets are never read even before expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "custodia:limits"}
}

func (s *RedisStore) bucket(key string, day int64) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, key, day)
}

func (s *RedisStore) Used(ctx context.Context, key string, day int64) (int64, error) {
	val, err := s.client.Get(ctx, s.bucket(key, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read limit bucket: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Add(ctx context.Context, key string, day int64, amount int64) error {
	bucket := s.bucket(key, day)
	pipe := s.client.TxPipeline()
	pipe.IncrBy(ctx, bucket, amount)
	pipe.Expire(ctx, bucket, 2*id.SecondsPerDay*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("consume limit bucket: %w", err)
	}
	return nil
}
