package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// KeyLocker is a distributed per-key lock on SET NX PX.
// The TTL bounds how long a crashed holder blocks the key.
type KeyLocker struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewKeyLocker constructs a locker. ttl defaults to 30s.
func NewKeyLocker(client goredis.UniversalClient, ttl time.Duration, logger *zap.SugaredLogger) *KeyLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &KeyLocker{client: client, prefix: "lock:", ttl: ttl, logger: logger}
}

// TryLock takes key without blocking.
func (l *KeyLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	if l == nil || l.client == nil {
		return nil, false, errors.New("redis key locker: nil client")
	}
	token := uuid.NewString()
	lockKey := l.prefix + key
	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis key locker: set %s", lockKey)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		// The caller's ctx may already be cancelled; release on a short fresh deadline.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err(); err != nil {
			l.logger.Warnw("redis lock release failed", "key", lockKey, "error", err)
		}
	}
	return unlock, true, nil
}
