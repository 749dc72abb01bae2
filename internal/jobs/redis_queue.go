package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue keeps jobs in a Redis list: LPUSH to enqueue, BRPOP to take.
type RedisQueue struct {
	inner *redis.Client
	key   string
}

func NewRedisQueue(ctx context.Context, addr, password, key string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("jobs: redis ping: %w", err)
	}
	return &RedisQueue{inner: client, key: key}, nil
}

func (q *RedisQueue) Close() error {
	return q.inner.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.inner.LPush(ctx, q.key, raw).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, error) {
	res, err := q.inner.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, ErrEmpty
		}
		if ctx.Err() != nil {
			return Job{}, ctx.Err()
		}
		return Job{}, err
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return Job{}, fmt.Errorf("jobs: unexpected BRPOP reply of %d elements", len(res))
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return job, nil
}

// Len reports the number of queued jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.inner.LLen(ctx, q.key).Result()
}
