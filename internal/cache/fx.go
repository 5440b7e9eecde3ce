package cache

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fieldops/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "fieldops:"

var Module = fx.Module("cache",
	fx.Provide(NewStore),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewStore uses Redis when REDIS_ADDR is set and an in-process TTL cache otherwise.
func NewStore(p Params) Store {
	log := p.Log.Named("cache")
	addr := strings.TrimSpace(p.Config.RedisAddr)
	if addr == "" {
		log.Info("using in-memory cache")
		return NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Config.RedisPassword),
		DB:       p.Config.RedisDB,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, cache reads will miss", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("using redis cache", zap.String("addr", addr))
	return NewRedisStore(client, keyPrefix)
}
