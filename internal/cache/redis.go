package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTier is the shared distributed tier: fast, lossy, shared by all
// processes. Misses and redis errors both fall through to the next tier.
type RedisTier struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTier(client *redis.Client, prefix string, ttl time.Duration) *RedisTier {
	return &RedisTier{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisTier) key(k string) string { return r.prefix + ":" + k }

func (r *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisTier) Set(ctx context.Context, key string, payload []byte) error {
	if err := r.client.Set(ctx, r.key(key), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisTier) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// RedisLocker implements the distributed per-unit lock with SET NX PX and an
// ownership-checked release, so a holder that outlived its TTL cannot delete
// a lock some other caller has since acquired.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLocker) key(k string) string { return l.prefix + ":lock:" + k }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := newLockToken()
	ok, err := l.client.SetNX(ctx, l.key(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(key)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis unlock %s: %w", key, err)
	}
	return nil
}

func newLockToken() string { return uuid.NewString() }
