// Package cache provides the optional redis client used for hot-path
// lookups such as business profiles.
package cache

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pixora/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient returns a redis client, or nil when no address is
// configured. Consumers treat a nil client as cache-off.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	log = log.Named("cache.redis")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				// The cache is an accelerator, not a dependency.
				log.Warn("redis unreachable, continuing without cache", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

// Module wires the optional redis cache client.
var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
)
