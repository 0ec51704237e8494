package model

import "time"

// SessionError is the terminal error flag carried by a Session.
type SessionError string

const (
	// SessionErrorNone marks a usable session.
	SessionErrorNone SessionError = ""
	// RefreshAccessTokenError is set when a refresh exchange fails.
	// Once set the session must not be used for upstream calls.
	RefreshAccessTokenError SessionError = "RefreshAccessTokenError"
)

// SessionState is the lifecycle state of a Session at a given instant.
type SessionState string

const (
	StateFresh   SessionState = "fresh"
	StateExpired SessionState = "expired"
	StateErrored SessionState = "errored"
	// StateRefreshing is an expired session whose refresh is under way.
	// It is never stored; only the token manager knows about it.
	StateRefreshing SessionState = "refreshing"
)

// Session is the OAuth token pair of one signed-in user.
type Session struct {
	UserID       string       `json:"user_id" dynamodbav:"user_id"`
	AccessToken  string       `json:"access_token" dynamodbav:"access_token"`
	RefreshToken string       `json:"refresh_token" dynamodbav:"-"`
	ExpiresAt    int64        `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds
	Error        SessionError `json:"error,omitempty" dynamodbav:"error,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at" dynamodbav:"updated_at"`
}

// Errored reports whether the session has been marked unusable.
func (s Session) Errored() bool {
	return s.Error != SessionErrorNone
}

// State returns Errored, Fresh or Expired for the given instant.
func (s Session) State(now time.Time) SessionState {
	if s.Errored() {
		return StateErrored
	}
	if now.Unix() < s.ExpiresAt {
		return StateFresh
	}
	return StateExpired
}

// SessionRecord is the persisted form of a Session in DynamoDB.
// The refresh token is stored encrypted.
type SessionRecord struct {
	Session
	EncryptedRefreshToken string `dynamodbav:"encrypted_refresh_token"`
	TTL                   int64  `dynamodbav:"ttl"`
}

// RefreshLock is a short-lived lease guarding one session's refresh.
type RefreshLock struct {
	Key       string `json:"lock_key" dynamodbav:"lock_key"`
	Owner     string `json:"owner" dynamodbav:"owner"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}
