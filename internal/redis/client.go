// Package redisclient provides the Redis connection and the multi-key
// locks that serialize capacity admission and per-patient ledger work.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-booking-ledger/internal/config"
)

// NewRedisClient connects using the configured address and credentials.
// Timeouts stay well under the lock TTL so a stalled Redis call cannot
// outlive the lock it guards.
func NewRedisClient(cfg config.Config) (*redis.Client, error) {
	readTimeout := cfg.LockTTL / 4
	if readTimeout <= 0 || readTimeout > 2*time.Second {
		readTimeout = time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DB:           0,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  readTimeout,
		WriteTimeout: readTimeout,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
