package store

import (
	"context"
	"time"

	"auditlens/internal/domain/entity"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryIntentCache is a bounded in-process IntentCache for running without
// Redis. The TTL is fixed per cache; the ttl passed to Set is ignored.
type MemoryIntentCache struct {
	lru *expirable.LRU[string, entity.RecognizedIntent]
}

func NewMemoryIntentCache(maxEntries int, ttl time.Duration) *MemoryIntentCache {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	return &MemoryIntentCache{lru: expirable.NewLRU[string, entity.RecognizedIntent](maxEntries, nil, ttl)}
}

func (c *MemoryIntentCache) Get(_ context.Context, key string) (entity.RecognizedIntent, bool) {
	return c.lru.Get(key)
}

func (c *MemoryIntentCache) Set(_ context.Context, key string, intent entity.RecognizedIntent, _ time.Duration) {
	c.lru.Add(key, intent)
}

func (c *MemoryIntentCache) Len() int {
	return c.lru.Len()
}
