// Package token keeps a user's Spotify access token valid, refreshing it
// at most once per expiry across concurrent callers.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/logger"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/metrics"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/session"
)

const (
	// DefaultRefreshTimeout bounds one call to the token endpoint.
	DefaultRefreshTimeout = 10 * time.Second
	// DefaultLockWait is how long a caller waits on another owner's lease.
	DefaultLockWait = 5 * time.Second

	defaultLockPoll = 200 * time.Millisecond

	// fallbackLifetime applies when the token endpoint omits expires_in.
	fallbackLifetime = time.Hour
)

// Result is the outcome of GetValidToken. Callers must check AuthError
// before using Token; when it is set the user has to sign in again.
type Result struct {
	Token     string
	Session   model.Session
	AuthError bool
	// Err is set when the caller's context ended before a shared refresh
	// completed. The session is unchanged in that case.
	Err error
}

// Manager owns the refresh lifecycle of user sessions.
type Manager struct {
	oauth  *oauth2.Config
	store  session.Store
	locker session.Locker
	owner  string

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]int // running refreshes per user

	httpClient     *http.Client
	refreshTimeout time.Duration
	lockWait       time.Duration
	lockPoll       time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets where sessions are persisted. Defaults to a MemoryStore.
func WithStore(s session.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithLocker guards refreshes across processes sharing the same store.
func WithLocker(l session.Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithRefreshTimeout overrides DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refreshTimeout = d }
}

// WithLockWait overrides DefaultLockWait.
func WithLockWait(d time.Duration) Option {
	return func(m *Manager) { m.lockWait = d }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger.OrNop(l) }
}

// NewManager creates a Manager for the given OAuth2 config.
func NewManager(cfg *oauth2.Config, opts ...Option) *Manager {
	m := &Manager{
		oauth:          cfg,
		store:          session.NewMemoryStore(),
		owner:          uuid.NewString(),
		inflight:       make(map[string]int),
		refreshTimeout: DefaultRefreshTimeout,
		lockWait:       DefaultLockWait,
		lockPoll:       defaultLockPoll,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AuthCodeURL returns the Spotify authorize URL for the given state.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "false"))
}

// Exchange trades an authorization code for the initial session. The
// returned session has no UserID yet.
func (m *Manager) Exchange(ctx context.Context, code string) (model.Session, error) {
	ctx, cancel := context.WithTimeout(m.clientContext(ctx), m.refreshTimeout)
	defer cancel()

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return model.Session{}, errors.New("no refresh token in response")
	}

	return model.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    m.expiresAt(tok),
		UpdatedAt:    m.now(),
	}, nil
}

// Save persists a session, typically right after sign-in.
func (m *Manager) Save(ctx context.Context, s model.Session) error {
	s.UpdatedAt = m.now()
	return m.store.Save(ctx, s)
}

// SignOut forgets the session of userID. A refresh still in flight for
// that user finishes without writing its result back.
func (m *Manager) SignOut(ctx context.Context, userID string) error {
	m.group.Forget(flightKeyFor(userID))
	return m.store.Delete(ctx, userID)
}

// Refreshing reports whether a refresh for userID is running in this
// process or holds the shared refresh lease.
func (m *Manager) Refreshing(ctx context.Context, userID string) bool {
	m.mu.Lock()
	running := m.inflight[userID] > 0
	m.mu.Unlock()
	if running {
		return true
	}
	if m.locker == nil {
		return false
	}
	lease, err := m.locker.GetLockStatus(ctx, lockKey(userID))
	if err != nil {
		m.logger.Warn("failed to read refresh lock", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return lease != nil
}

// Session returns the stored session of userID.
func (m *Manager) Session(ctx context.Context, userID string) (*model.Session, error) {
	return m.store.Get(ctx, userID)
}

// TokenForUser loads the session of userID and returns a valid token for it.
// A missing session is reported as AuthError, not as an error.
func (m *Manager) TokenForUser(ctx context.Context, userID string) (Result, error) {
	s, err := m.store.Get(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		metrics.AuthRequired.Inc()
		return Result{AuthError: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to load session: %w", err)
	}
	return m.GetValidToken(ctx, *s), nil
}

// GetValidToken returns the access token of s, refreshing it first when it
// has expired. Concurrent callers for the same session share one refresh.
func (m *Manager) GetValidToken(ctx context.Context, s model.Session) Result {
	if s.Errored() || (s.AccessToken == "" && s.RefreshToken == "") {
		return authRequired(s)
	}
	if s.AccessToken != "" && s.State(m.now()) == model.StateFresh {
		return Result{Token: s.AccessToken, Session: s}
	}

	ch := m.group.DoChan(m.flightKey(s), func() (any, error) {
		// The refresh outlives any single caller; it is bounded by refreshTimeout.
		return m.refreshShared(context.WithoutCancel(ctx), s), nil
	})

	select {
	case <-ctx.Done():
		return Result{Session: s, Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			metrics.TokenRefreshes.WithLabelValues("shared").Inc()
		}
		next, _ := res.Val.(model.Session)
		if next.Errored() {
			return authRequired(next)
		}
		return Result{Token: next.AccessToken, Session: next}
	}
}

// Refresh performs one refresh_token exchange. On failure the returned
// session carries RefreshAccessTokenError and its previous token fields.
// Failures are never retried here.
func (m *Manager) Refresh(ctx context.Context, s model.Session) model.Session {
	if s.RefreshToken == "" {
		return m.fail(s, errors.New("no refresh token"))
	}

	ctx, cancel := context.WithTimeout(m.clientContext(ctx), m.refreshTimeout)
	defer cancel()

	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: s.RefreshToken}).Token()
	if err != nil {
		return m.fail(s, err)
	}

	s.AccessToken = tok.AccessToken
	s.ExpiresAt = m.expiresAt(tok)
	// oauth2 carries the old refresh token over when none is issued.
	if tok.RefreshToken != "" {
		s.RefreshToken = tok.RefreshToken
	}
	s.Error = model.SessionErrorNone
	s.UpdatedAt = m.now()

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	m.logger.Debug("access token refreshed",
		zap.String("user_id", s.UserID),
		zap.Int64("expires_at", s.ExpiresAt))
	return s
}

// refreshShared runs inside the single-flight group. It re-reads the store
// first so that a caller arriving after another refresh finished reuses it.
// A session that was stored when the refresh began is only written back if
// it still exists, so sign-out during a refresh sticks.
func (m *Manager) refreshShared(ctx context.Context, s model.Session) model.Session {
	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout+m.lockWait)
	defer cancel()

	if s.UserID == "" {
		return m.Refresh(ctx, s)
	}

	m.track(s.UserID, 1)
	defer m.track(s.UserID, -1)

	if stored, ok := m.settled(ctx, s.UserID); ok {
		return stored
	}
	stored, err := m.store.Get(ctx, s.UserID)
	persisted := err == nil
	if persisted && stored.RefreshToken != "" {
		s = *stored
	}

	if m.locker != nil {
		release, done, ok := m.lock(ctx, s.UserID)
		if ok {
			return done
		}
		defer release()
	}

	next := m.Refresh(ctx, s)
	if persisted {
		err = m.store.Update(ctx, next)
	} else {
		err = m.store.Save(ctx, next)
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		m.logger.Info("session signed out during refresh", zap.String("user_id", s.UserID))
		next.Error = model.RefreshAccessTokenError
	case err != nil:
		m.logger.Error("failed to persist session", zap.String("user_id", s.UserID), zap.Error(err))
	}
	return next
}

func (m *Manager) track(userID string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight[userID] += delta
	if m.inflight[userID] <= 0 {
		delete(m.inflight, userID)
	}
}

// settled returns the stored session when it no longer needs a refresh.
func (m *Manager) settled(ctx context.Context, userID string) (model.Session, bool) {
	stored, err := m.store.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			m.logger.Warn("failed to read session", zap.String("user_id", userID), zap.Error(err))
		}
		return model.Session{}, false
	}
	switch stored.State(m.now()) {
	case model.StateFresh, model.StateErrored:
		return *stored, true
	}
	return model.Session{}, false
}

// lock acquires the cross-process refresh lease. While another owner holds
// it, the store is polled for the session that owner refreshes; if ok is
// true that session is returned and no refresh is needed. When the wait
// runs out the caller refreshes without the lease.
func (m *Manager) lock(ctx context.Context, userID string) (release func(), done model.Session, ok bool) {
	noop := func() {}
	key := lockKey(userID)
	deadline := m.now().Add(m.lockWait)

	for {
		_, err := m.locker.AcquireLock(ctx, key, m.owner)
		if err == nil {
			return func() {
				if err := m.locker.ReleaseLock(ctx, key, m.owner); err != nil {
					m.logger.Warn("failed to release refresh lock", zap.String("user_id", userID), zap.Error(err))
				}
			}, model.Session{}, false
		}
		if !errors.Is(err, session.ErrLocked) {
			m.logger.Warn("refresh lock unavailable", zap.String("user_id", userID), zap.Error(err))
			return noop, model.Session{}, false
		}

		if stored, settled := m.settled(ctx, userID); settled {
			return noop, stored, true
		}
		if !m.now().Before(deadline) {
			m.logger.Warn("timed out waiting for refresh lock", zap.String("user_id", userID))
			return noop, model.Session{}, false
		}

		select {
		case <-ctx.Done():
			return noop, model.Session{}, false
		case <-time.After(m.lockPoll):
		}
	}
}

func (m *Manager) fail(s model.Session, err error) model.Session {
	s.Error = model.RefreshAccessTokenError
	s.UpdatedAt = m.now()

	fields := []zap.Field{zap.String("user_id", s.UserID), zap.Error(err)}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		fields = append(fields, zap.Int("status", re.Response.StatusCode), zap.String("error_code", re.ErrorCode))
	}
	m.logger.Warn("token refresh failed", fields...)
	metrics.TokenRefreshes.WithLabelValues("failure").Inc()
	return s
}

// expiresAt is now + expires_in on the Manager's clock. oauth2 stamps
// Expiry with the wall clock, so only the remaining lifetime is taken from it.
func (m *Manager) expiresAt(tok *oauth2.Token) int64 {
	lifetime := fallbackLifetime
	switch {
	case tok.ExpiresIn > 0:
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		lifetime = time.Until(tok.Expiry).Round(time.Second)
	}
	return m.now().Add(lifetime).Unix()
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) flightKey(s model.Session) string {
	if s.UserID != "" {
		return flightKeyFor(s.UserID)
	}
	return "rt|" + s.RefreshToken
}

func flightKeyFor(userID string) string { return "user|" + userID }

func lockKey(userID string) string { return "refresh|" + userID }

func authRequired(s model.Session) Result {
	metrics.AuthRequired.Inc()
	return Result{Session: s, AuthError: true}
}
