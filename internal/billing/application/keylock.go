package application

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	billing "hostel-billing/internal/billing/domain"
	"hostel-billing/internal/observability/metrics"
)

var errKeyContended = errors.New("key contended")

// LockPolicy bounds how long a caller waits for a contended invoice key.
type LockPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultLockPolicy retries five times starting at 20ms.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{MaxRetries: 5, InitialInterval: 20 * time.Millisecond, MaxInterval: 500 * time.Millisecond}
}

// KeyedExecutor runs functions while holding a per-key lock.
type KeyedExecutor struct {
	locker KeyLocker
	policy LockPolicy
	logger *zap.SugaredLogger
}

// NewKeyedExecutor constructs an executor. A nil locker runs functions unguarded.
func NewKeyedExecutor(locker KeyLocker, policy LockPolicy, logger *zap.SugaredLogger) *KeyedExecutor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultLockPolicy().InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval * 16
	}
	return &KeyedExecutor{locker: locker, policy: policy, logger: logger}
}

// Do acquires key, runs fn and releases key on every exit path.
// Contention past the retry budget yields a ConcurrentModificationError.
func (e *KeyedExecutor) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if e == nil || e.locker == nil {
		return fn(ctx)
	}

	attempts := 0
	var unlock func()
	acquire := func() error {
		attempts++
		release, ok, err := e.locker.TryLock(ctx, key)
		if err != nil {
			return backoff.Permanent(errors.Wrapf(err, "lock %s", key))
		}
		if !ok {
			metrics.IncLockContention()
			return errKeyContended
		}
		unlock = release
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.policy.InitialInterval
	policy.MaxInterval = e.policy.MaxInterval
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.policy.MaxRetries)), ctx)

	if err := backoff.Retry(acquire, retry); err != nil {
		if errors.Is(err, errKeyContended) {
			e.logger.Warnw("invoice key contended", "key", key, "attempts", attempts)
			return &billing.ConcurrentModificationError{Key: key, Attempts: attempts}
		}
		return err
	}
	defer unlock()
	return fn(ctx)
}
