package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's
// token, so one holder cannot release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// ExecutionLock implements domain.ExecutionLock using SETNX with a TTL
// and a Lua-based conditional release. The TTL bounds how long a crashed
// holder can block other executors.
type ExecutionLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

var _ domain.ExecutionLock = (*ExecutionLock)(nil)

// NewExecutionLock creates an ExecutionLock backed by the given Client.
func NewExecutionLock(c *Client) *ExecutionLock {
	return &ExecutionLock{
		rdb:      c.rdb,
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire obtains the lock and returns the holder token that Release
// requires. It returns domain.ErrLockHeld while another holder is active.
func (l *ExecutionLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", domain.ErrLockHeld
	}
	return token, nil
}

// Release deletes the lock when token still matches the holder. A lock
// that already expired or was taken over releases as a no-op.
func (l *ExecutionLock) Release(ctx context.Context, key, token string) error {
	if err := l.unlockSc.Run(ctx, l.rdb, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("redis: release lock %s: %w", key, err)
	}
	return nil
}
