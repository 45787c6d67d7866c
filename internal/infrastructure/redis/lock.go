package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Only the owner token may release.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// ActivationLockKey serialises activation runs for one attempt across workers.
func ActivationLockKey(attemptID uuid.UUID) string {
	return "activation:" + attemptID.String()
}

// DistributedLock is a SET NX lock with an owner token.
type DistributedLock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    "lock:" + key,
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domainErrors.ErrLockAcquisitionFailed, err)
	}
	l.acquired = ok
	return ok, nil
}

// Release is a no-op for a lock that was never acquired.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	l.acquired = false
	if n, ok := result.(int64); !ok || n == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// Locker hands out activation locks bound to one client and TTL.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// TryLock returns a release func when the lock was taken, or ok=false when
// another holder has it.
func (l *Locker) TryLock(ctx context.Context, key string) (release func(context.Context) error, ok bool, err error) {
	lock := NewDistributedLock(l.client, key, l.ttl)
	ok, err = lock.Acquire(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return lock.Release, true, nil
}
