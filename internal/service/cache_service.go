package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/pkg/cache"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

const (
	cacheKeyThreshold     = "settings:prediction_threshold"
	cacheScopeReviewQueue = "review_queue"
)

// CacheRepository is the storage behind CacheService. Keys passed in are relative to the service
// namespace.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Generation(ctx context.Context, scope string) (int64, error)
	Bump(ctx context.Context, scope string) (int64, error)
}

// CacheService is a best-effort read cache. A nil or disabled service misses on every read and
// ignores writes, and backend failures are logged and treated as misses by callers.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger.Named("cache"), enabled: enabled}
}

func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get reports whether key was found and decoded into dest.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() || key == "" {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set stores value; a non-positive ttl means the configured default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() || key == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Delete(ctx, keys...); err != nil {
		s.logger.Warn("delete failed", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

// ScopedKey returns a key bound to the current generation of scope. It returns "" when the cache is
// off or the generation cannot be read, which Get and Set treat as a miss.
func (s *CacheService) ScopedKey(ctx context.Context, scope string, parts ...string) string {
	if !s.Enabled() {
		return ""
	}
	gen, err := s.repo.Generation(ctx, scope)
	if err != nil {
		s.logger.Warn("generation read failed", zap.String("scope", scope), zap.Error(err))
		return ""
	}
	return cache.ScopedKey(scope, gen, parts...)
}

// Invalidate retires every entry cached under scope.
func (s *CacheService) Invalidate(ctx context.Context, scope string) error {
	if !s.Enabled() {
		return nil
	}
	if _, err := s.repo.Bump(ctx, scope); err != nil {
		s.logger.Warn("invalidate failed", zap.String("scope", scope), zap.Error(err))
		return err
	}
	return nil
}
