package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codequest/internal/common"
)

// releaseLockScript deletes the lock only if this instance still holds it,
// so an expired lock taken over by another holder is never clobbered.
var releaseLockScript = redis.NewScript(`
    if redis.call("get", KEYS[1]) == ARGV[1] then
        return redis.call("del", KEYS[1])
    else
        return 0
    end
`)

// evalLock enforces at-most-one in-flight execution per (user, challenge).
// The xsync map is authoritative within the process; the Redis SetNX lock
// extends the same guarantee across instances. A second concurrent request
// for the same pair is rejected with Conflict, never queued silently.
type evalLock struct {
	local     *xsync.MapOf[string, struct{}]
	rdb       *redis.Client
	keyPrefix string
	ttl       int
	log       *zap.Logger
}

func newEvalLock(rdb *redis.Client, keyPrefix string, ttlSeconds int, log *zap.Logger) *evalLock {
	return &evalLock{
		local:     xsync.NewMapOf[string, struct{}](),
		rdb:       rdb,
		keyPrefix: keyPrefix,
		ttl:       ttlSeconds,
		log:       log,
	}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func lockKey(userID, challengeID string) string {
	return userID + ":" + challengeID
}

// Acquire takes the in-flight slot for (user, challenge) and returns a
// release func. It fails with common.ErrConflict when the slot is held.
func (l *evalLock) Acquire(ctx context.Context, userID, challengeID string) (func(), error) {
	key := lockKey(userID, challengeID)
	if _, loaded := l.local.LoadOrStore(key, struct{}{}); loaded {
		return nil, fmt.Errorf("an evaluation is already in flight for this challenge: %w", common.ErrConflict)
	}

	if l.rdb == nil {
		return func() { l.local.Delete(key) }, nil
	}

	redisKey := l.keyPrefix + key
	lockValue := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, redisKey, lockValue, secondsToDuration(l.ttl)).Result()
	if err != nil {
		l.local.Delete(key)
		return nil, fmt.Errorf("failed to acquire evaluation lock: %w", err)
	}
	if !ok {
		l.local.Delete(key)
		return nil, fmt.Errorf("an evaluation is already in flight for this challenge: %w", common.ErrConflict)
	}

	return func() {
		l.local.Delete(key)
		deleted, err := releaseLockScript.Run(context.Background(), l.rdb, []string{redisKey}, lockValue).Result()
		if err != nil {
			l.log.Error("failed to release evaluation lock", zap.String("key", redisKey), zap.Error(err))
		} else if v, ok := deleted.(int64); ok && v == 0 {
			l.log.Warn("evaluation lock expired before release", zap.String("key", redisKey))
		}
	}, nil
}
