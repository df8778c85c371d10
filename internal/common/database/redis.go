// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"nlq-resolver/internal/common/config"
	"nlq-resolver/internal/metadata"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis client holding published metadata snapshots.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis builds the client. Nothing is dialed until the first command.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.DB < 0 {
		return nil, fmt.Errorf("redis db must be non-negative, got %d", cfg.DB)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MinIdleConns: 1,
	})
	return &RedisClient{Client: rdb}, nil
}

// SnapshotStore returns the metadata store kept under key. An empty key
// uses metadata.DefaultRedisKey.
func (c *RedisClient) SnapshotStore(key string) *metadata.RedisStore {
	return metadata.NewRedisStore(c.Client, key)
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}
