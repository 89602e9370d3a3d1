package worker

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wudi/edgecache/internal/cache"
	"github.com/wudi/edgecache/internal/config"
)

// OpenStore constructs the partition store backend selected by config.
func OpenStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(cfg.MaxEntries), nil
	case "leveldb":
		return cache.OpenLevelDB(cfg.Path)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewRedisStore(client, cfg.Redis.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
