package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func watermarkKey(taskName string) string { return "task:watermark:" + taskName }

type redisStore struct {
	client *redis.Client
}

// NewRedis returns a Redis-backed Store. Watermarks are stored without a TTL
// as RFC 3339 strings with nanosecond precision.
func NewRedis(client *redis.Client) Store {
	return &redisStore{client: client}
}

// NewRedisClient creates a Redis client with conservative timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (s *redisStore) Get(ctx context.Context, taskName string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, watermarkKey(taskName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get watermark for %s: %w", taskName, err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt watermark for %s: %w", taskName, err)
	}
	return t, true, nil
}

func (s *redisStore) Put(ctx context.Context, taskName string, t time.Time) error {
	val := t.UTC().Format(time.RFC3339Nano)
	if err := s.client.Set(ctx, watermarkKey(taskName), val, 0).Err(); err != nil {
		return fmt.Errorf("redis set watermark for %s: %w", taskName, err)
	}
	return nil
}
