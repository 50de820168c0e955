package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLoginLimiter counts failed login attempts per account in Redis so all
// instances share the same throttle window.
type RedisLoginLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewRedisLoginLimiter creates a limiter allowing max failed attempts within
// the rolling window.
func NewRedisLoginLimiter(client *redis.Client, max int, window time.Duration) *RedisLoginLimiter {
	if max <= 0 {
		panic("api.NewRedisLoginLimiter: max attempts must be positive")
	}
	if window <= 0 {
		panic("api.NewRedisLoginLimiter: window must be positive")
	}
	return &RedisLoginLimiter{client: client, max: max, window: window}
}

func (r *RedisLoginLimiter) key(email string) string {
	return "login-fail:" + email
}

// Allow reports whether the account is still under the failure cap.
func (r *RedisLoginLimiter) Allow(ctx context.Context, email string) (bool, error) {
	count, err := r.client.Get(ctx, r.key(email)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return count < r.max, nil
}

// RecordFailure increments the failure counter, starting the expiry window on
// the first failure.
func (r *RedisLoginLimiter) RecordFailure(ctx context.Context, email string) error {
	count, err := r.client.Incr(ctx, r.key(email)).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return r.client.Expire(ctx, r.key(email), r.window).Err()
	}
	return nil
}

// Reset clears the counter after a successful login.
func (r *RedisLoginLimiter) Reset(ctx context.Context, email string) error {
	return r.client.Del(ctx, r.key(email)).Err()
}
