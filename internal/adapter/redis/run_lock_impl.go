package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/prober-service/internal/repository"
	"github.com/user/prober-service/pkg/utils"
)

const runLockPrefix = "prober:runlock:"

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// RunLockImpl implements repository.RunLock with a single expiring Redis key per result store.
type RunLockImpl struct {
	client *redis.Client
	key    string
}

// NewRunLock scopes the lock to storeIdentity, e.g. the store DSN.
func NewRunLock(client *redis.Client, storeIdentity string) *RunLockImpl {
	return &RunLockImpl{client: client, key: lockKey(storeIdentity)}
}

func lockKey(storeIdentity string) string {
	return fmt.Sprintf("%s%s", runLockPrefix, utils.HashKey(storeIdentity))
}

// Acquire sets the key only if it is absent. SET NX with an expiry is atomic.
func (l *RunLockImpl) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, owner, ttl).Result()
}

func (l *RunLockImpl) Refresh(ctx context.Context, owner string, ttl time.Duration) error {
	res, err := refreshScript.Run(ctx, l.client, []string{l.key}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return repository.ErrLockLost
	}
	return nil
}

func (l *RunLockImpl) Release(ctx context.Context, owner string) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err()
}
