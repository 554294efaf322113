// Package kv connects the Redis client shared by stores that keep
// short-lived state outside the process.
package kv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/m3rciful/artbot/core/logger"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
	PoolSize int    `yaml:"pool_size" envconfig:"REDIS_POOL_SIZE"`
}

// Normalize fills defaults.
func (c *Config) Normalize() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Prefix == "" {
		c.Prefix = "artbot"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 20
	}
	return nil
}

// Connect dials Redis and verifies it with PING.
func Connect(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		logger.KV.Error("redis connect failed",
			slog.String("event", "kv.connect"),
			slog.String("host", cfg.Addr),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.KV.Info("redis connected",
		slog.String("event", "kv.connect"),
		slog.String("host", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", logger.Took(start)),
	)
	return rdb, nil
}

// Key joins parts under the configured prefix with ':'.
func Key(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}
