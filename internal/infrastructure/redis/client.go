package redisinfra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopnest-api/internal/config"
)

// NewClient connects to Redis and pings it once so a bad address fails at
// startup rather than on the first verification.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}
