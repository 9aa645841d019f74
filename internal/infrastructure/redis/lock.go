package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the owner token may release the key.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock is a single SET NX lock owned by a random token.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock once.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.acquired = ok
	return ok, nil
}

// AcquireWithRetry polls until the lock is taken, attempts run out or ctx ends.
func (l *DistributedLock) AcquireWithRetry(ctx context.Context, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return domainErrors.ErrLockAcquisitionFailed
}

func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	res, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.acquired = false
	if res == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Locker hands out short-lived locks on named keys.
type Locker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewLocker(client redis.Cmdable, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// WithLock runs fn while holding key. A lock that expired under fn is reported
// as ErrLockNotHeld after fn has already completed.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := NewDistributedLock(l.client, key, l.ttl)
	if err := lock.AcquireWithRetry(ctx, 20, l.ttl/20+10*time.Millisecond); err != nil {
		return err
	}
	fnErr := fn(ctx)
	relErr := lock.Release(context.WithoutCancel(ctx))
	if fnErr != nil {
		return fnErr
	}
	return relErr
}
