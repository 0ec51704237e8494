package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second, nil)
}

func TestSearchPlaylists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer AT1", r.Header.Get("Authorization"))
		assert.Equal(t, "workout", r.URL.Query().Get("q"))
		assert.Equal(t, "playlist", r.URL.Query().Get("type"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"playlists":{"items":[
			{"id":"p1","name":"Workout Mix","tracks":{"total":42}},
			null,
			{"id":"p2","name":"Run"}
		],"total":3,"limit":5}}`))
	})

	res, err := c.SearchPlaylists(context.Background(), "AT1", "workout", 5)
	require.NoError(t, err)

	list := res.Compact()
	require.Len(t, list, 2)
	assert.Equal(t, "p1", list[0].ID)
	assert.Equal(t, 42, list[0].Tracks.Total)
	assert.Equal(t, "p2", list[1].ID)
}

func TestSearchTracks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"), "limit is clamped")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracks":{"items":[{"id":"t1","name":"Levitating","artists":[{"id":"a1","name":"Dua Lipa"}]}]}}`))
	})

	res, err := c.SearchTracks(context.Background(), "AT1", "levitating", 500)
	require.NoError(t, err)
	require.Len(t, res.Tracks.Items, 1)
	assert.Equal(t, "Levitating", res.Tracks.Items[0].Name)
	assert.Equal(t, "Dua Lipa", res.Tracks.Items[0].Artists[0].Name)
}

func TestPlaylistTracks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/playlists/p1/tracks", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.NotEmpty(t, r.URL.Query().Get("fields"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"track":{"id":"t1","name":"One"}},{"track":null},{"track":{"id":"","name":"local"}}]}`))
	})

	res, err := c.PlaylistTracks(context.Background(), "AT1", "p1")
	require.NoError(t, err)
	list := res.List()
	require.Len(t, list, 1)
	assert.Equal(t, "t1", list[0].ID)
}

func TestCurrentUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"user-1","display_name":"Ana","email":"ana@example.com"}`))
	})

	u, err := c.CurrentUser(context.Background(), "AT1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)
	assert.Equal(t, "Ana", u.DisplayName)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		want       error
		notWant    []error
		wantRetry  time.Duration
	}{
		{"rate limited", http.StatusTooManyRequests, "7", ErrRateLimited, []error{ErrUnavailable, ErrUnauthorized}, 7 * time.Second},
		{"unauthorized", http.StatusUnauthorized, "", ErrUnauthorized, []error{ErrUnavailable, ErrRateLimited}, 0},
		{"server error", http.StatusBadGateway, "", ErrUnavailable, []error{ErrRateLimited, ErrUnauthorized}, 0},
		{"not found", http.StatusNotFound, "", ErrUnavailable, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"status":0,"message":"nope"}}`))
			})

			_, err := c.SearchTracks(context.Background(), "AT1", "q", 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			for _, e := range tt.notWant {
				assert.False(t, errors.Is(err, e), "unexpected match %v", e)
			}

			var uerr *UpstreamError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, tt.status, uerr.StatusCode)
			assert.Equal(t, tt.wantRetry, uerr.RetryAfter)
			assert.Equal(t, "nope", uerr.Message)
		})
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	_, err := c.CurrentUser(context.Background(), "AT1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.CurrentUser(ctx, "AT1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
