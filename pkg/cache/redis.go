// Package cache holds the redis client constructor and the key layout used by the read cache.
package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/campus-complaints-api/pkg/config"
)

const (
	namespace  = "complaints"
	pingBudget = 3 * time.Second
)

// NewRedis dials redis and fails fast when the server does not answer a PING.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingBudget)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return client, nil
}

func options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Key joins parts under the service namespace: Key("settings", "threshold") is
// "complaints:settings:threshold".
func Key(parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

// GenerationKey names the counter that versions every entry cached under scope.
func GenerationKey(scope string) string {
	return Key("gen", scope)
}

// ScopedKey builds a key, relative to the namespace, tied to a generation of scope. Bumping the
// generation orphans every older key, which then ages out by TTL.
func ScopedKey(scope string, generation int64, parts ...string) string {
	return strings.Join(append([]string{scope, "v" + strconv.FormatInt(generation, 10)}, parts...), ":")
}
