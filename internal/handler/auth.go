package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/logger"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/session"
)

// SessionManager is the sign-in side of the token manager.
type SessionManager interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (model.Session, error)
	Save(ctx context.Context, s model.Session) error
	SignOut(ctx context.Context, userID string) error
	Session(ctx context.Context, userID string) (*model.Session, error)
	Refreshing(ctx context.Context, userID string) bool
}

// AuthHandler handles the Spotify sign-in flow and the app session cookie.
type AuthHandler struct {
	sessions      SessionManager
	upstream      Upstream
	jwtSecret     string
	frontendURL   string
	secureCookies bool
	now           func() time.Time
	logger        *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. Cookies are marked
// SameSite=None; Secure unless devMode is set.
func NewAuthHandler(sessions SessionManager, upstream Upstream, jwtSecret, frontendURL string, devMode bool, l *zap.Logger) *AuthHandler {
	return &AuthHandler{
		sessions:      sessions,
		upstream:      upstream,
		jwtSecret:     jwtSecret,
		frontendURL:   frontendURL,
		secureCookies: !devMode,
		now:           time.Now,
		logger:        logger.OrNop(l),
	}
}

// Login redirects to the Spotify authorize page. The state is kept in a
// short-lived cookie and checked on callback.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state := uuid.NewString()

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.sessions.AuthCodeURL(state),
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {cookie(stateCookie, state, 10*time.Minute, h.secureCookies)},
		},
	}, nil
}

// Callback handles the OAuth2 callback from Spotify.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if reason := req.QueryStringParameters["error"]; reason != "" {
		return h.redirect("/?error=" + url.QueryEscape(reason)), nil
	}

	code := req.QueryStringParameters["code"]
	if code == "" {
		return errorResponse(http.StatusBadRequest, "Missing code"), nil
	}
	state := req.QueryStringParameters["state"]
	if state == "" || state != getCookie(req, stateCookie) {
		return errorResponse(http.StatusBadRequest, "Invalid state"), nil
	}

	sess, err := h.sessions.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("code exchange failed", zap.Error(err))
		return errorResponse(http.StatusBadGateway, "Failed to exchange code"), nil
	}

	user, err := h.upstream.CurrentUser(ctx, sess.AccessToken)
	if err != nil {
		h.logger.Warn("failed to load Spotify profile", zap.Error(err))
		return upstreamErrorResponse(err), nil
	}

	sess.UserID = user.ID
	if err := h.sessions.Save(ctx, sess); err != nil {
		h.logger.Error("failed to save session", zap.String("user_id", user.ID), zap.Error(err))
		return errorResponse(http.StatusInternalServerError, "Failed to save session"), nil
	}

	signed, err := IssueSessionToken(user, h.jwtSecret, h.now())
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	h.logger.Info("user signed in", zap.String("user_id", user.ID))
	resp := h.redirect("/?success=true")
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {
			cookie(sessionCookie, signed, sessionMaxAge, h.secureCookies),
			cookie(stateCookie, "", 0, h.secureCookies),
		},
	}
	return resp, nil
}

// Logout deletes the stored Spotify session and clears the cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if userID, err := GetUserID(req, h.jwtSecret); err == nil {
		if err := h.sessions.SignOut(ctx, userID); err != nil {
			h.logger.Error("failed to delete session", zap.String("user_id", userID), zap.Error(err))
			return errorResponse(http.StatusInternalServerError, "Failed to sign out"), nil
		}
	}

	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {cookie(sessionCookie, "", 0, h.secureCookies)},
	}
	return resp, nil
}

type sessionStatus struct {
	Authenticated bool               `json:"authenticated"`
	UserID        string             `json:"user_id,omitempty"`
	State         model.SessionState `json:"state,omitempty"`
	ExpiresAt     int64              `json:"expires_at,omitempty"`
	Error         model.SessionError `json:"error,omitempty"`
}

// Session handles GET /auth/session. An expired but refreshable session
// still counts as authenticated.
func (h *AuthHandler) Session(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return jsonResponse(http.StatusOK, sessionStatus{}), nil
	}

	sess, err := h.sessions.Session(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		return jsonResponse(http.StatusOK, sessionStatus{}), nil
	}
	if err != nil {
		h.logger.Error("failed to load session", zap.String("user_id", userID), zap.Error(err))
		return errorResponse(http.StatusInternalServerError, "Failed to load session"), nil
	}

	status := sessionStatus{
		Authenticated: !sess.Errored(),
		UserID:        userID,
		State:         sess.State(h.now()),
		Error:         sess.Error,
	}
	if !sess.Errored() {
		status.ExpiresAt = sess.ExpiresAt
	}
	if status.State == model.StateExpired && h.sessions.Refreshing(ctx, userID) {
		status.State = model.StateRefreshing
	}
	return jsonResponse(http.StatusOK, status), nil
}

func (h *AuthHandler) redirect(path string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.frontendURL + path,
		},
	}
}
