package redlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const (
	// retryBaseInterval and retryMaxInterval shape the exponential backoff
	// between acquisition attempts in WaitLock.
	retryBaseInterval = 100 * time.Millisecond
	retryMaxInterval  = 2 * time.Second
)

// ErrLockHeld is returned by Lock when another holder owns the key. Callers
// that want to wait use WaitLock instead.
var ErrLockHeld = errors.New("lock already held")

type Locker struct {
	client redis.UniversalClient
	key    string
	value  string // Used for ensuring that only the lock holder can unlock or renew the lock
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

// Lock makes a single non-blocking acquisition attempt: a conditional
// set-if-not-exists with expiry. The TTL must stay short relative to the
// critical section so a crashed holder cannot park the key permanently.
func (l *Locker) Lock(ctx context.Context, timeout time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, timeout).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("lock for key %s is already held: %w", l.key, ErrLockHeld)
	}
	return nil
}

// Unlock releases the lock only if this locker still holds it.
func (l *Locker) Unlock(ctx context.Context) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

// ExtendLock pushes out the expiry of a held lock.
func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock extension failed for key %s, either lock expired or you're not the holder", l.key)
	}
	return nil
}

// WaitLock retries acquisition with exponential backoff (base 100ms, capped
// at 2s) until waitTimeout elapses. Backend errors surface immediately: the
// lock fails closed so correctness-critical callers never proceed unlocked.
func (l *Locker) WaitLock(ctx context.Context, lockTimeout, waitTimeout time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseInterval
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = waitTimeout

	operation := func() error {
		err := l.Lock(ctx, lockTimeout)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrLockHeld) {
			return err // retryable, the holder may release soon
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("failed to acquire lock for key %s within the wait timeout: %w", l.key, err)
	}
	return nil
}
