package store

import (
	"context"
	"encoding/json"
	"time"

	"auditlens/internal/domain/entity"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisIntentCache shares recognized intents across instances.
// Cache errors are logged and treated as misses.
type RedisIntentCache struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisIntentCache(client *redis.Client, log *zap.Logger) *RedisIntentCache {
	return &RedisIntentCache{client: client, log: log.Named("intent_cache")}
}

func intentKey(key string) string { return "intent:" + key }

func (c *RedisIntentCache) Get(ctx context.Context, key string) (entity.RecognizedIntent, bool) {
	raw, err := c.client.Get(ctx, intentKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("intent cache read failed", zap.Error(err))
		}
		return entity.RecognizedIntent{}, false
	}
	var intent entity.RecognizedIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return entity.RecognizedIntent{}, false
	}
	return intent, true
}

func (c *RedisIntentCache) Set(ctx context.Context, key string, intent entity.RecognizedIntent, ttl time.Duration) {
	raw, err := json.Marshal(intent)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, intentKey(key), raw, ttl).Err(); err != nil {
		c.log.Warn("intent cache write failed", zap.Error(err))
	}
}
