package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrTargetBusy indicates another scan of the same target is in flight.
	ErrTargetBusy = errors.New("target is already being scanned")
	// ErrLockLost indicates the caller's lock expired or was taken over.
	ErrLockLost = errors.New("target lock no longer held")
)

// TargetLock serializes scans per target address.
type TargetLock interface {
	Acquire(ctx context.Context, target, token string, ttl time.Duration) error
	Refresh(ctx context.Context, target, token string, ttl time.Duration) error
	Release(ctx context.Context, target, token string) error
}

// RateLimiter counts requests per key within a window.
type RateLimiter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// HealthChecker reports whether backing services are reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RedisStore implements TargetLock, RateLimiter and HealthChecker on Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) lockKey(target string) string {
	return fmt.Sprintf("scanlock:%s", target)
}

func (s *RedisStore) rateKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

// Acquire takes the lock for target, failing with ErrTargetBusy if it is held.
func (s *RedisStore) Acquire(ctx context.Context, target, token string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.lockKey(target), token, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", target, err)
	}
	if !ok {
		return ErrTargetBusy
	}
	return nil
}

// releaseScript deletes the lock only if it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if it still carries the caller's token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Refresh resets the lock's TTL, failing with ErrLockLost if token no longer owns it.
func (s *RedisStore) Refresh(ctx context.Context, target, token string, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, s.client, []string{s.lockKey(target)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh lock for %s: %w", target, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release drops the lock for target if token still owns it.
func (s *RedisStore) Release(ctx context.Context, target, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.lockKey(target)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", target, err)
	}
	return nil
}

// Hit increments the counter for key and returns the new count.
// The window starts on the first hit.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	counter := pipe.Incr(ctx, s.rateKey(key))
	pipe.ExpireNX(ctx, s.rateKey(key), window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return counter.Val(), nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
