package support

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisNotConfigured = errors.New("redis: REDIS_URL is not set")

var (
	redisOnce   sync.Once
	redisClient *redis.Client
	redisErr    error
)

// GetRedisClient returns the shared client for REDIS_URL, connecting and
// pinging it on first use.
func GetRedisClient() (*redis.Client, error) {
	redisOnce.Do(func() {
		redisClient, redisErr = NewRedisClient(GetEnv("REDIS_URL", ""))
	})
	return redisClient, redisErr
}

func NewRedisClient(rawURL string) (*redis.Client, error) {
	if rawURL == "" {
		return nil, ErrRedisNotConfigured
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}
