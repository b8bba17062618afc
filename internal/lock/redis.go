package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL   = 30 * time.Second
	lockRetryBackoff = 50 * time.Millisecond
)

// releaseScript deletes the lock key only when it still holds our token,
// so an expired lock re-acquired by another instance is never released here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a Locker backed by Redis SET NX with a TTL, for
// deployments running more than one service instance.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisLocker creates a distributed locker on the given client.
func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    defaultLockTTL,
		prefix: "case-lock:",
		logger: logger,
	}
}

// Acquire polls SET NX until the lock is taken or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lockKey := l.prefix + key

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err(); err != nil {
					l.logger.Warn("failed to release customer lock",
						zap.String("key", key), zap.Error(err))
				}
			}, nil
		}

		select {
		case <-time.After(lockRetryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
