package session

import (
	"context"
	"errors"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
)

// ErrLocked is returned by AcquireLock when another owner holds a live lease.
var ErrLocked = errors.New("refresh lock held by another owner")

// Locker guards a session refresh across processes.
type Locker interface {
	// AcquireLock takes the lease on key for owner. Re-acquiring an owned or
	// expired lease succeeds.
	AcquireLock(ctx context.Context, key, owner string) (*model.RefreshLock, error)

	// ReleaseLock removes the lease if owner holds it.
	ReleaseLock(ctx context.Context, key, owner string) error

	// GetLockStatus returns the live lease on key, or nil.
	GetLockStatus(ctx context.Context, key string) (*model.RefreshLock, error)
}
