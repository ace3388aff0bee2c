package database

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/ordersaga/pkg/retry"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a client and pings it, retrying under policy. The
// client is closed if every attempt fails.
func NewRedisClient(ctx context.Context, cfg RedisConfig, policy retry.Policy, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := retry.Do(ctx, "connect redis", policy, logger, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
