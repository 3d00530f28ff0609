package limits

import (
	"context"
	"sync"
)

type bucketKey struct {
	key string
	day int64
}

// MemoryStore keeps day buckets in process memory. Buckets for past days are
// dropped lazily whenever a newer day is touched for the same key.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[bucketKey]int64
	latest  map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[bucketKey]int64),
		latest:  make(map[string]int64),
	}
}

func (s *MemoryStore) Used(_ context.Context, key string, day int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buckets[bucketKey{key, day}], nil
}

func (s *MemoryStore) Add(_ context.Context, key string, day int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.latest[key]; ok && prev < day {
		delete(s.buckets, bucketKey{key, prev})
	}
	s.latest[key] = day
	s.buckets[bucketKey{key, day}] += amount
	return nil
}
