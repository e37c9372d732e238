package db

import (
	"context"
	"time"

	"backend-racehub/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil, nil when Redis is not configured. Callers fall
// back to in-process fan-out and in-memory drafts in that case.
func ConnectRedis(cfg config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
