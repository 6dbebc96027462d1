package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker guards a checkout against concurrent confirmation. The lock
// expires on its own if the holder dies.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(scope, key), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, scope, key string) error {
	if err := l.rdb.Del(ctx, lockKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func lockKey(scope, key string) string {
	return "idemp:" + scope + ":" + key
}
