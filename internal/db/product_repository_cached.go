package db

import (
	"context"
	"errors"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedProductRepository is a read-through cache in front of
// ProductRepository. Cache failures degrade to database reads.
type CachedProductRepository struct {
	repo   *ProductRepository
	cache  *cache.RedisCache
	logger *zap.Logger
}

func NewCachedProductRepository(repo *ProductRepository, cache *cache.RedisCache, logger *zap.Logger) *CachedProductRepository {
	return &CachedProductRepository{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// GetAll returns all products (with caching)
func (r *CachedProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	cacheKey := cache.AllProductsKey()

	var products []models.Product
	err := r.cache.Get(ctx, cacheKey, &products)
	if err == nil {
		r.logger.Debug("Cache hit", zap.String("key", cacheKey))
		return products, nil
	}
	r.logCacheMiss(cacheKey, err)

	products, err = r.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, cacheKey, products); err != nil {
		r.logger.Warn("Failed to cache products", zap.Error(err))
	}

	return products, nil
}

// GetByID returns a single product (with caching)
func (r *CachedProductRepository) GetByID(ctx context.Context, id int) (*models.Product, error) {
	cacheKey := cache.ProductKey(id)

	var product models.Product
	err := r.cache.Get(ctx, cacheKey, &product)
	if err == nil {
		r.logger.Debug("Cache hit", zap.String("key", cacheKey))
		return &product, nil
	}
	r.logCacheMiss(cacheKey, err)

	p, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	if err := r.cache.Set(ctx, cacheKey, p); err != nil {
		r.logger.Warn("Failed to cache product", zap.Int("product_id", id), zap.Error(err))
	}

	return p, nil
}

// Upsert writes through to the database and invalidates the affected keys.
func (r *CachedProductRepository) Upsert(ctx context.Context, id int, req models.UpsertProductRequest) (*models.Product, error) {
	product, err := r.repo.Upsert(ctx, id, req)
	if err != nil {
		return nil, err
	}

	if err := r.cache.InvalidateProducts(ctx, []int{id}); err != nil {
		r.logger.Warn("Failed to invalidate cache", zap.Int("product_id", id), zap.Error(err))
	}

	return product, nil
}

func (r *CachedProductRepository) logCacheMiss(key string, err error) {
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Cache miss", zap.String("key", key))
		return
	}
	r.logger.Warn("Cache error", zap.String("key", key), zap.Error(err))
}
