package repository

import (
	"context"
	"errors"
	"time"
)

// ErrLockLost is returned by Refresh when another owner holds the lock.
var ErrLockLost = errors.New("run lock is no longer held")

// RunLock guards a result store against a second engine writing to it concurrently.
type RunLock interface {
	// Acquire takes the lock for owner. It returns false when another owner holds it.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	// Refresh extends the lock if owner still holds it.
	Refresh(ctx context.Context, owner string, ttl time.Duration) error
	// Release drops the lock if owner still holds it.
	Release(ctx context.Context, owner string) error
}
