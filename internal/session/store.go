package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
)

// ErrNotFound is returned when no session exists for a user.
var ErrNotFound = errors.New("session not found")

// RetentionTTL is how long a persisted session outlives its last update.
const RetentionTTL = 30 * 24 * time.Hour

// Store persists one Session per user.
type Store interface {
	// Get returns the session of userID or ErrNotFound.
	Get(ctx context.Context, userID string) (*model.Session, error)

	// Save creates or replaces the session of s.UserID.
	Save(ctx context.Context, s model.Session) error

	// Update replaces the session of s.UserID only while it still exists.
	// It returns ErrNotFound when the session was deleted in the meantime.
	Update(ctx context.Context, s model.Session) error

	// Delete removes the session of userID. Deleting a missing session is not an error.
	Delete(ctx context.Context, userID string) error
}

// MemoryStore implements Store with a map. It is the default for DEV_MODE
// and tests.
type MemoryStore struct {
	sessions map[string]model.Session
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]model.Session)}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s model.Session) error {
	if s.UserID == "" {
		return errors.New("session: missing user_id")
	}
	m.mu.Lock()
	m.sessions[s.UserID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Update(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.UserID]; !ok {
		return ErrNotFound
	}
	m.sessions[s.UserID] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}
