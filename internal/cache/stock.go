package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

const stockKeyPrefix = "stock:"

// StockCache is a short-TTL read-through cache over the products.stock
// column. It is never authoritative: reservations and restorations always go
// through the row-locked transaction, which invalidates the entry afterwards.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStockCache creates a Redis-backed stock cache.
func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	return &StockCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached stock count for a product. A cache miss is reported
// as ErrNotFound so callers fall through to the database.
func (c *StockCache) Get(ctx context.Context, productID string) (int, error) {
	key := stockKeyPrefix + productID

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, apperrors.NotFound("stock", productID)
		}
		return 0, fmt.Errorf("redis get stock: %w", err)
	}

	stock, err := strconv.Atoi(data)
	if err != nil {
		return 0, fmt.Errorf("parse cached stock: %w", err)
	}

	return stock, nil
}

// Set stores a stock count with the configured TTL.
func (c *StockCache) Set(ctx context.Context, productID string, stock int) error {
	key := stockKeyPrefix + productID

	if err := c.client.Set(ctx, key, strconv.Itoa(stock), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set stock: %w", err)
	}

	return nil
}

// Invalidate drops the cached entry after a stock mutation commits.
func (c *StockCache) Invalidate(ctx context.Context, productID string) error {
	key := stockKeyPrefix + productID

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del stock: %w", err)
	}

	return nil
}
