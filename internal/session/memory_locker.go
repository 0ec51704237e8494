package session

import (
	"context"
	"sync"
	"time"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
)

// MemoryLocker implements Locker using an in-memory map. It only guards
// refreshes within one process and is meant for tests and DEV_MODE.
type MemoryLocker struct {
	locks       map[string]*model.RefreshLock
	mu          sync.Mutex
	ttlDuration time.Duration
	now         func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks:       make(map[string]*model.RefreshLock),
		ttlDuration: DefaultLockTTL,
		now:         time.Now,
	}
}

func (m *MemoryLocker) AcquireLock(_ context.Context, key, owner string) (*model.RefreshLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().Unix()
	if existing, ok := m.locks[key]; ok {
		if existing.ExpiresAt > now && existing.Owner != owner {
			return nil, ErrLocked
		}
	}

	lock := &model.RefreshLock{
		Key:       key,
		Owner:     owner,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	}
	m.locks[key] = lock
	cp := *lock
	return &cp, nil
}

func (m *MemoryLocker) ReleaseLock(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.locks[key]; ok && existing.Owner == owner {
		delete(m.locks, key)
	}
	return nil
}

func (m *MemoryLocker) GetLockStatus(_ context.Context, key string) (*model.RefreshLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[key]
	if !ok || existing.ExpiresAt < m.now().Unix() {
		return nil, nil
	}
	cp := *existing
	return &cp, nil
}
