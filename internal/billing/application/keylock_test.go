package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-billing/internal/billing/application"
	"hostel-billing/internal/billing/infrastructure/memory"
)

func TestKeyedExecutorReleasesOnError(t *testing.T) {
	locker := memory.NewKeyLocker()
	exec := application.NewKeyedExecutor(locker, application.LockPolicy{MaxRetries: 0, InitialInterval: time.Millisecond}, nil)
	boom := errors.New("boom")

	err := exec.Do(context.Background(), "k", func(context.Context) error { return boom })
	assert.True(t, errors.Is(err, boom))

	unlock, ok, err := locker.TryLock(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	unlock()
}

func TestKeyedExecutorWithoutLockerRunsDirectly(t *testing.T) {
	var exec *application.KeyedExecutor
	called := false
	require.NoError(t, exec.Do(context.Background(), "k", func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestKeyedExecutorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := application.NewKeyedExecutor(memory.NewKeyLocker(), application.DefaultLockPolicy(), nil)

	err := exec.Do(ctx, "k", func(context.Context) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}
