package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/spotify"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/token"
)

const (
	sessionCookie = "session_token"
	stateCookie   = "oauth_state"
	sessionMaxAge = 24 * time.Hour
)

// Tokens hands out valid Spotify access tokens for signed-in users.
type Tokens interface {
	TokenForUser(ctx context.Context, userID string) (token.Result, error)
}

// getHeader is a case-insensitive header lookup.
func getHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// getCookie returns the named cookie from the Cookie header.
func getCookie(req events.APIGatewayProxyRequest, name string) string {
	cookies := getHeader(req, "Cookie")
	for _, part := range strings.Split(cookies, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, name+"=") {
			return strings.TrimPrefix(part, name+"=")
		}
	}
	return ""
}

// GetUserID extracts the user ID from the Authorization header or session cookie.
func GetUserID(req events.APIGatewayProxyRequest, jwtSecret string) (string, error) {
	// 1. Check Authorization Header (Bearer <token>)
	tokenString := ""
	authHeader := getHeader(req, "Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Check Cookie
	if tokenString == "" {
		tokenString = getCookie(req, sessionCookie)
	}

	if tokenString == "" {
		return "", fmt.Errorf("no authorization token found")
	}

	// Verify JWT
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := tok.Claims.(jwt.MapClaims); ok && tok.Valid {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}

	return "", fmt.Errorf("invalid token claims")
}

// IssueSessionToken signs the app session JWT for a Spotify user.
func IssueSessionToken(user *spotify.User, jwtSecret string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"name":  user.DisplayName,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(sessionMaxAge).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

func cookie(name, value string, maxAge time.Duration, secure bool) string {
	sameSite := "Lax"
	if secure {
		sameSite = "None; Secure"
	}
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s", name, value, int(maxAge.Seconds()), sameSite)
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func errorResponse(status int, msg string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"error": msg})
}

func unauthorized() events.APIGatewayProxyResponse {
	return errorResponse(http.StatusUnauthorized, "Unauthorized")
}

// authRequired tells the client that the Spotify session is unusable and a
// new sign-in is needed.
func authRequired() events.APIGatewayProxyResponse {
	return errorResponse(http.StatusUnauthorized, string(model.RefreshAccessTokenError))
}

// tokenResponse converts a token lookup into an early response. ok is false
// when the caller must stop and return resp.
func tokenResponse(res token.Result, err error) (resp events.APIGatewayProxyResponse, ok bool) {
	switch {
	case err != nil:
		return errorResponse(http.StatusInternalServerError, "Failed to load session"), false
	case res.AuthError:
		return authRequired(), false
	case res.Err != nil:
		return errorResponse(http.StatusGatewayTimeout, "Token refresh did not complete"), false
	}
	return events.APIGatewayProxyResponse{}, true
}

// upstreamErrorResponse maps a Spotify failure to a client-facing response.
func upstreamErrorResponse(err error) events.APIGatewayProxyResponse {
	switch {
	case errors.Is(err, spotify.ErrRateLimited):
		resp := errorResponse(http.StatusTooManyRequests, "Rate limited by Spotify, retry later")
		var uerr *spotify.UpstreamError
		if errors.As(err, &uerr) && uerr.RetryAfter > 0 {
			resp.Headers["Retry-After"] = strconv.Itoa(int(uerr.RetryAfter.Seconds()))
		}
		return resp
	case errors.Is(err, spotify.ErrUnauthorized):
		return errorResponse(http.StatusUnauthorized, "Spotify rejected the access token")
	case errors.Is(err, context.DeadlineExceeded):
		return errorResponse(http.StatusGatewayTimeout, "Spotify did not respond in time")
	default:
		return errorResponse(http.StatusBadGateway, "Spotify is unavailable")
	}
}
