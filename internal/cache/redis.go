package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const allProductsKey = "products:all"

func ProductKey(id int) string {
	return fmt.Sprintf("product:%d", id)
}

func AllProductsKey() string {
	return allProductsKey
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(ctx context.Context, addr string, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", addr))

	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Get retrieves value from cache. It returns redis.Nil on a miss.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(val, dest)
}

// Set stores value in cache
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// InvalidateProducts drops the cached entries of the given products and the
// product listing.
func (c *RedisCache) InvalidateProducts(ctx context.Context, ids []int) error {
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, ProductKey(id))
	}
	keys = append(keys, allProductsKey)

	if err := c.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate products: %w", err)
	}

	c.logger.Debug("Cache invalidated", zap.Ints("product_ids", ids))
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
