package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("appointment lock not acquired")
)

// Locker guards a booking attempt per appointment URL across processes.
type Locker interface {
	WithURLLock(ctx context.Context, href string, fn func(ctx context.Context) error) error
}

type redisURLLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisURLLocker creates a locker that uses one Redis key per appointment URL.
// ttl only sets how long the key survives a crashed holder; fn keeps the
// caller's deadline, so ttl should exceed the longest attempt.
func NewRedisURLLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisURLLocker{
		client: client,
		ttl:    ttl,
	}
}

func lockKey(href string) string {
	return fmt.Sprintf("lock:appointment:%s", uuid.NewSHA1(uuid.NameSpaceURL, []byte(href)))
}

func (l *redisURLLocker) WithURLLock(ctx context.Context, href string, fn func(ctx context.Context) error) error {
	key := lockKey(href)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire appointment lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// the caller's ctx may already be done; release on a fresh one
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	return fn(ctx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisURLLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release appointment lock: %w", err)
	}
	return nil
}
