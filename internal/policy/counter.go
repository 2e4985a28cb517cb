package policy

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCounterStore is the in-process CounterStore. Counters reset when
// their window expires; a sweep drops idle keys so the map stays bounded.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
}

type windowCounter struct {
	count   int64
	expires time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*windowCounter)}
}

// Incr implements CounterStore with a single-writer serialization point so
// concurrent bursts cannot bypass the limit through lost updates.
func (s *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || now.After(c.expires) {
		c = &windowCounter{expires: now.Add(window)}
		s.counters[key] = c
	}
	c.count++

	// Opportunistic sweep keeps long-tail keys from accumulating.
	if len(s.counters) > 4096 {
		for k, v := range s.counters {
			if now.After(v.expires) {
				delete(s.counters, k)
			}
		}
	}

	return c.count, nil
}

// RedisCounterStore is the distributed CounterStore: INCR plus EXPIRE armed
// on the first increment of the window.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client, prefix: "warden:"}
}

// Incr implements CounterStore.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, s.prefix+key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, s.prefix+key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}
