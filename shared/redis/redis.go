package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"birthday-wall/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// NewClient builds a client from REDIS_URL. A bare host:port is accepted
// as well as a redis:// URL; REDIS_PASSWORD and REDIS_DB override the URL.
func NewClient(cfg *config.Config) (*redis.Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func options(cfg *config.Config) (*redis.Options, error) {
	var opts *redis.Options
	if addr := cfg.Redis.URL; strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	opts.DialTimeout = 5 * time.Second
	return opts, nil
}

// Ping checks connectivity, used at startup before the store is built
func Ping(ctx context.Context, client redis.UniversalClient) error {
	return client.Ping(ctx).Err()
}
