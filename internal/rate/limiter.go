package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/redis/go-redis/v9"
)

// Config holds retry throttle tuning parameters.
type Config struct {
	// MaxTransientAttempts is the number of transient failures tolerated per
	// refresh key inside one window before further attempts are denied.
	MaxTransientAttempts int
	// Cooldown is the window length, started by the first failure.
	Cooldown time.Duration
}

// Limiter throttles refresh retries per refresh key using Redis counters. It
// implements refresh.RetryPolicy.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow reports whether another refresh attempt may reach the backend.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.attempts(ctx, retryKey(key))
	if err != nil {
		return false, err
	}
	return count < int64(l.config.MaxTransientAttempts), nil
}

// Record counts transient failures and clears the window on any other outcome.
func (l *Limiter) Record(ctx context.Context, key string, kind refresh.FailureKind) error {
	if kind == refresh.FailureTransient {
		_, err := l.incrementWithTTL(ctx, retryKey(key), l.config.Cooldown)
		return err
	}
	return l.Reset(ctx, key)
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, retryKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the transient failures recorded for key in the current window.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.attempts(ctx, retryKey(key))
	return int(count), err
}

func (l *Limiter) attempts(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func retryKey(key string) string {
	return "gsr:" + key
}
