package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/pkg/cache"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

// CacheRepository keeps JSON documents in redis under the service namespace. With a nil client every
// read misses and every write is dropped.
type CacheRepository struct {
	client redis.Cmdable
	logger *zap.Logger
}

func NewCacheRepository(client redis.Cmdable, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get decodes the entry at key into dest. Corrupt entries are evicted and reported as a miss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, cache.Key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("evicting corrupt cache entry", zap.String("key", key), zap.Error(err))
		_ = r.client.Del(ctx, cache.Key(key)).Err()
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value as JSON under key for ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return r.wrap("set", key, r.client.Set(ctx, cache.Key(key), payload, ttl).Err())
}

// Delete drops exact keys.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	if r.client == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = cache.Key(k)
	}
	return r.wrap("del", fmt.Sprint(keys), r.client.Del(ctx, full...).Err())
}

// Generation reads the current version of scope. An unset counter is generation zero.
func (r *CacheRepository) Generation(ctx context.Context, scope string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	gen, err := r.client.Get(ctx, cache.GenerationKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, r.wrap("generation", scope, err)
}

// Bump advances the version of scope, orphaning every key built from an older generation.
func (r *CacheRepository) Bump(ctx context.Context, scope string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	gen, err := r.client.Incr(ctx, cache.GenerationKey(scope)).Result()
	return gen, r.wrap("bump", scope, err)
}

func (r *CacheRepository) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cache %s %s: %w", op, key, err)
}
