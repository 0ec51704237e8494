package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
)

// releaseScript deletes the lease only when it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX leases.
type RedisLocker struct {
	client      *redis.Client
	prefix      string
	ttlDuration time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:      client,
		prefix:      "wrapped:lock:",
		ttlDuration: DefaultLockTTL,
	}
}

func (r *RedisLocker) AcquireLock(ctx context.Context, key, owner string) (*model.RefreshLock, error) {
	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, owner, r.ttlDuration).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		// Re-acquiring our own lease extends it.
		current, err := r.client.Get(ctx, k).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read lock: %w", err)
		}
		if current != owner {
			return nil, ErrLocked
		}
		if err := r.client.Expire(ctx, k, r.ttlDuration).Err(); err != nil {
			return nil, fmt.Errorf("failed to extend lock: %w", err)
		}
	}
	return &model.RefreshLock{
		Key:       key,
		Owner:     owner,
		ExpiresAt: time.Now().Add(r.ttlDuration).Unix(),
	}, nil
}

func (r *RedisLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (r *RedisLocker) GetLockStatus(ctx context.Context, key string) (*model.RefreshLock, error) {
	k := r.prefix + key
	owner, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock status: %w", err)
	}
	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lock ttl: %w", err)
	}
	return &model.RefreshLock{
		Key:       key,
		Owner:     owner,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}, nil
}
