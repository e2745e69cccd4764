package ratelimit

import (
	"github.com/briefworks/briefworks/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the shared token bucket. Without REDIS_ADDR the bucket
// is nil and limits are not enforced.
var Module = fx.Module("ratelimit",
	fx.Provide(func(cfg config.Config, log *zap.Logger) *TokenBucket {
		if cfg.RedisAddr == "" {
			log.Named("ratelimit").Info("redis not configured, rate limiting disabled")
			return nil
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return NewTokenBucket(client)
	}),
)
