package handler_test

import (
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/handler"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/spotify"
)

const testJWTSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestGetUserID(t *testing.T) {
	valid := makeToken(testUserID)
	expired := signed(t, jwt.SigningMethodHS256, []byte(testJWTSecret), jwt.MapClaims{
		"sub": testUserID,
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	otherSecret := signed(t, jwt.SigningMethodHS256, []byte("someone-else"), jwt.MapClaims{
		"sub": testUserID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	noSubject := signed(t, jwt.SigningMethodHS256, []byte(testJWTSecret), jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	unsigned := signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{
		"sub": testUserID,
	})

	tests := []struct {
		name    string
		headers map[string]string
		wantErr bool
	}{
		{name: "bearer header", headers: map[string]string{"Authorization": "Bearer " + valid}},
		{name: "lowercase header", headers: map[string]string{"authorization": "Bearer " + valid}},
		{name: "session cookie", headers: map[string]string{"Cookie": "oauth_state=abc; session_token=" + valid}},
		{name: "bearer wins over cookie", headers: map[string]string{
			"Authorization": "Bearer " + valid,
			"Cookie":        "session_token=garbage",
		}},
		{name: "no token", headers: map[string]string{}, wantErr: true},
		{name: "not a jwt", headers: map[string]string{"Authorization": "Bearer invalid-jwt-token"}, wantErr: true},
		{name: "expired", headers: map[string]string{"Authorization": "Bearer " + expired}, wantErr: true},
		{name: "wrong secret", headers: map[string]string{"Authorization": "Bearer " + otherSecret}, wantErr: true},
		{name: "missing subject", headers: map[string]string{"Authorization": "Bearer " + noSubject}, wantErr: true},
		{name: "alg none", headers: map[string]string{"Authorization": "Bearer " + unsigned}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := handler.GetUserID(events.APIGatewayProxyRequest{Headers: tt.headers}, testJWTSecret)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got user %q", userID)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetUserID failed: %v", err)
			}
			if userID != testUserID {
				t.Errorf("Expected userID '%s', got '%s'", testUserID, userID)
			}
		})
	}
}

func TestIssueSessionToken(t *testing.T) {
	user := &spotify.User{ID: "wrapped-fan", DisplayName: "Wrapped Fan", Email: "fan@example.com"}
	now := time.Now()

	tok, err := handler.IssueSessionToken(user, testJWTSecret, now)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}

	userID, err := handler.GetUserID(events.APIGatewayProxyRequest{
		Headers: map[string]string{"Authorization": "Bearer " + tok},
	}, testJWTSecret)
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if userID != user.ID {
		t.Errorf("Expected userID '%s', got '%s'", user.ID, userID)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return []byte(testJWTSecret), nil
	}); err != nil {
		t.Fatalf("failed to parse claims: %v", err)
	}
	exp, _ := claims.GetExpirationTime()
	if exp == nil || exp.Unix() != now.Add(24*time.Hour).Unix() {
		t.Errorf("Expected expiry 24h after issue, got %v", exp)
	}
	if claims["email"] != user.Email {
		t.Errorf("Expected email claim %q, got %v", user.Email, claims["email"])
	}
}
