package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pentouz/rate-engine/pricing"
)

const keyPrefix = "inventory"

// InventoryCache implements pricing.InventoryProvider by caching whole
// [start, end) ranges of another provider as JSON.
//
// Redis failures never fail a read: the cache logs and falls through to the
// wrapped provider. Errors from the wrapped provider are not cached.
type InventoryCache struct {
	client Client
	next   pricing.InventoryProvider
	ttl    time.Duration
}

func NewInventoryCache(client Client, next pricing.InventoryProvider, ttl time.Duration) *InventoryCache {
	return &InventoryCache{client: client, next: next, ttl: ttl}
}

func key(productID pricing.ProductID, start, end pricing.Date) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, productID, start, end)
}

// GetInventory implements pricing.InventoryProvider.
func (c *InventoryCache) GetInventory(ctx context.Context, productID pricing.ProductID, start, end pricing.Date) ([]pricing.InventoryRecord, error) {
	k := key(productID, start, end)

	if records, ok := c.get(ctx, k); ok {
		return records, nil
	}

	records, err := c.next.GetInventory(ctx, productID, start, end)
	if err != nil {
		return nil, err
	}

	c.save(ctx, k, records)
	return records, nil
}

func (c *InventoryCache) get(ctx context.Context, k string) ([]pricing.InventoryRecord, bool) {
	raw, err := c.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", k).Str("InventoryCache", "Get").Msg("cache unavailable, reading through")
		return nil, false
	}

	var records []pricing.InventoryRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		log.Error().Err(err).Str("key", k).Str("InventoryCache", "Get").Msg("failed to unmarshal cache")
		return nil, false
	}
	log.Debug().Str("key", k).Str("InventoryCache", "Get").Msg("cache hit")
	return records, true
}

func (c *InventoryCache) save(ctx context.Context, k string, records []pricing.InventoryRecord) {
	value, err := json.Marshal(records)
	if err != nil {
		log.Error().Err(err).Str("key", k).Str("InventoryCache", "Save").Msg("failed to marshal cache")
		return
	}
	if err := c.client.Set(ctx, k, value, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", k).Str("InventoryCache", "Save").Msg("failed to set cache")
	}
}

// Invalidate drops every cached range of productID.
func (c *InventoryCache) Invalidate(ctx context.Context, productID pricing.ProductID) error {
	match := fmt.Sprintf("%s:%s:*", keyPrefix, productID)

	iter := c.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if err := c.client.Del(ctx, k).Err(); err != nil {
			log.Error().Err(err).Str("key", k).Str("InventoryCache", "Invalidate").Msg("failed to del cache")
			return fmt.Errorf("failed to delete cache value: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return nil
}

var _ pricing.InventoryProvider = (*InventoryCache)(nil)
