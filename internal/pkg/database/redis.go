package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrRedisNotConfigured means REDIS_URL is empty. Redis only carries
// ledger event fan-out and reconciler wake-ups, so callers may run
// without it.
var ErrRedisNotConfigured = errors.New("redis url not configured")

// NewRedis connects a client for role, which names the user in logs
// ("events", "reconcile-wakeups").
func NewRedis(redisURL, role string) (*redis.Client, error) {
	opt, err := redisOptions(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}

	log.Info().Str("addr", opt.Addr).Int("db", opt.DB).Str("role", role).Msg("Connected to Redis")
	return client, nil
}

// redisOptions sizes the pool for the ledger's light traffic: one
// publish per settled transaction plus a single subscriber.
func redisOptions(redisURL string) (*redis.Options, error) {
	if redisURL == "" {
		return nil, ErrRedisNotConfigured
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	return opt, nil
}

// CloseRedis closes the Redis connection
func CloseRedis(client *redis.Client) {
	if client == nil {
		return
	}
	addr := client.Options().Addr
	if err := client.Close(); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("Error closing Redis connection")
		return
	}
	log.Info().Str("addr", addr).Msg("Redis connection closed")
}
