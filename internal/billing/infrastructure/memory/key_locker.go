package memory

import (
	"context"
	"sync"
)

// KeyLocker is a process-local keyed mutex.
type KeyLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyLocker constructs a locker.
func NewKeyLocker() *KeyLocker {
	return &KeyLocker{held: make(map[string]struct{})}
}

// TryLock takes key without blocking.
func (l *KeyLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
