package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter caps the model tokens a session may consume per window.
type RedisLimiter struct {
	client *redis.Client
	limit  int // max tokens per window
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func usageKey(sessionID string) string { return "usage:" + sessionID }

func (r *RedisLimiter) CheckLimit(ctx context.Context, sessionID string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	val, err := r.client.Get(ctx, usageKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil // no usage yet
	}
	if err != nil {
		return false, fmt.Errorf("read token usage: %w", err)
	}
	usage, err := strconv.Atoi(val)
	if err != nil {
		return true, nil
	}
	return usage < r.limit, nil
}

// Increment adds tokens and starts the window on first use.
func (r *RedisLimiter) Increment(ctx context.Context, sessionID string, tokens int) error {
	key := usageKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.ExpireNX(ctx, key, r.window)
	_, err := pipe.Exec(ctx)
	return err
}
