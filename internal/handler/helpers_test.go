package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/spotify"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/token"
)

const testUserID = "test-user-123"

func makeToken(userID string) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte(testJWTSecret))
	return signed
}

func makeRequest(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"Authorization": "Bearer " + makeToken(testUserID),
			"Content-Type":  "application/json",
		},
		QueryStringParameters: map[string]string{},
		PathParameters:        map[string]string{},
	}
}

// accounts is a fake Spotify accounts service backing a real token.Manager.
type accounts struct {
	calls atomic.Int32
}

func newManager(t *testing.T, opts ...token.Option) (*token.Manager, *accounts) {
	t.Helper()
	acc := &accounts{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc.calls.Add(1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") == "bad-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"AT0","refresh_token":"RT0","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	cfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/api/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	return token.NewManager(cfg, opts...), acc
}

func freshSession() model.Session {
	return model.Session{
		UserID:       testUserID,
		AccessToken:  "AT1",
		RefreshToken: "RT1",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
}

func saveSession(t *testing.T, m *token.Manager, s model.Session) {
	t.Helper()
	if err := m.Save(context.Background(), s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

// fakeUpstream records calls and serves canned Spotify payloads.
type fakeUpstream struct {
	mu sync.Mutex

	playlists     []*spotify.Playlist
	tracks        []spotify.Track
	failPlaylists map[string]error
	searchErr     error
	user          *spotify.User
	searchCalls   int
	trackCalls    int
	playlistCalls map[string]int
	lastToken     string
}

func newFakeUpstream(n int) *fakeUpstream {
	f := &fakeUpstream{
		failPlaylists: map[string]error{},
		playlistCalls: map[string]int{},
		user:          &spotify.User{ID: testUserID, DisplayName: "Test User", Email: "test@example.com"},
		tracks:        []spotify.Track{{ID: "t1", Name: "Levitating"}, {ID: "t2", Name: "Physical"}},
	}
	for i := 0; i < n; i++ {
		f.playlists = append(f.playlists, &spotify.Playlist{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Playlist %d", i)})
	}
	return f
}

func (f *fakeUpstream) SearchPlaylists(_ context.Context, token, q string, limit int) (*spotify.PlaylistSearch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastToken = token
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out spotify.PlaylistSearch
	out.Playlists.Items = f.playlists
	return &out, nil
}

func (f *fakeUpstream) SearchTracks(_ context.Context, token, q string, limit int) (*spotify.TrackSearch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trackCalls++
	f.lastToken = token
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out spotify.TrackSearch
	if q != "nothing" {
		out.Tracks.Items = f.tracks[:1]
	}
	return &out, nil
}

func (f *fakeUpstream) PlaylistTracks(_ context.Context, token, playlistID string) (*spotify.PlaylistTracks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlistCalls[playlistID]++
	if err := f.failPlaylists[playlistID]; err != nil {
		return nil, err
	}
	var out spotify.PlaylistTracks
	for i := range f.tracks {
		out.Items = append(out.Items, spotify.PlaylistItem{Track: &f.tracks[i]})
	}
	return &out, nil
}

func (f *fakeUpstream) CurrentUser(_ context.Context, token string) (*spotify.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	return f.user, nil
}

func (f *fakeUpstream) totalPlaylistCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.playlistCalls {
		n += c
	}
	return n
}

func decode(t *testing.T, resp events.APIGatewayProxyResponse, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(resp.Body), v); err != nil {
		t.Fatalf("failed to decode body %q: %v", resp.Body, err)
	}
}
