// Package cache is a small JSON-over-Redis cache. Every call is a no-op (or
// a miss) when Redis is not configured or unreachable.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	redisClient *redis.Client
	enabled     bool
)

// ErrMiss is returned by Get when the key is absent or caching is disabled.
var ErrMiss = redis.Nil

// Initialize sets up the Redis connection if redisURL is provided.
func Initialize(redisURL string, logger *zap.Logger) {
	if redisURL == "" {
		logger.Info("redis url not provided, caching disabled")
		enabled = false
		return
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, caching disabled", zap.Error(err))
		enabled = false
		return
	}

	redisClient = redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, caching disabled", zap.Error(err))
		enabled = false
		return
	}

	enabled = true
	logger.Info("redis cache initialized", zap.String("addr", opt.Addr))
}

// Enabled reports whether values are actually cached.
func Enabled() bool {
	return enabled
}

// Close closes the Redis connection.
func Close() {
	if redisClient != nil {
		_ = redisClient.Close()
	}
	enabled = false
}

// Set stores value as JSON with an expiration.
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}

	return redisClient.Set(ctx, key, data, expiration).Err()
}

// Get loads the JSON value stored at key into dest.
func Get(ctx context.Context, key string, dest interface{}) error {
	if !enabled {
		return ErrMiss
	}

	data, err := redisClient.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return errors.Wrapf(json.Unmarshal(data, dest), "decode %s", key)
}

// Delete removes a key from the cache.
func Delete(ctx context.Context, key string) error {
	if !enabled {
		return nil
	}

	return redisClient.Del(ctx, key).Err()
}
