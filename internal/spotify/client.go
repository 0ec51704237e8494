// Package spotify is a small client for the Spotify Web API endpoints the
// service forwards to.
package spotify

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/logger"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.spotify.com/v1"
	DefaultTimeout = 10 * time.Second

	// MaxSearchLimit is the largest page Spotify's search endpoint accepts.
	MaxSearchLimit = 50

	playlistTrackFields = "items(track(id,name,uri,duration_ms,popularity,preview_url,external_urls,artists(id,name),album(id,name,images))),total"
)

// Client calls the Spotify Web API with a caller-supplied bearer token.
// It never retries; rate limits are surfaced as ErrRateLimited.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL and a
// zero timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, l *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		logger: logger.OrNop(l),
	}
}

// SearchPlaylists runs GET /search?type=playlist.
func (c *Client) SearchPlaylists(ctx context.Context, token, q string, limit int) (*PlaylistSearch, error) {
	var out PlaylistSearch
	err := c.get(ctx, "search-playlists", token, "/search", map[string]string{
		"q":     q,
		"type":  "playlist",
		"limit": strconv.Itoa(clampLimit(limit)),
	}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchTracks runs GET /search?type=track.
func (c *Client) SearchTracks(ctx context.Context, token, q string, limit int) (*TrackSearch, error) {
	var out TrackSearch
	err := c.get(ctx, "search-tracks", token, "/search", map[string]string{
		"q":     q,
		"type":  "track",
		"limit": strconv.Itoa(clampLimit(limit)),
	}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaylistTracks returns the first 100 tracks of a playlist.
func (c *Client) PlaylistTracks(ctx context.Context, token, playlistID string) (*PlaylistTracks, error) {
	var out PlaylistTracks
	err := c.get(ctx, "playlist-tracks", token, "/playlists/{id}/tracks", map[string]string{
		"fields": playlistTrackFields,
		"limit":  "100",
	}, map[string]string{"id": playlistID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser runs GET /me.
func (c *Client) CurrentUser(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.get(ctx, "me", token, "/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, endpoint, token, path string, query, pathParams map[string]string, out any) error {
	start := time.Now()

	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(query).
		SetPathParams(pathParams).
		SetResult(out).
		SetError(&apiErr).
		Get(path)

	metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		c.logger.Warn("spotify request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return &UpstreamError{Endpoint: endpoint, Err: err}
	}

	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()
	if resp.IsSuccess() {
		return nil
	}

	uerr := &UpstreamError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode(),
		Message:    apiErr.Error.Message,
		Err:        errors.New(resp.Status()),
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		uerr.RetryAfter = parseRetryAfter(resp.Header().Get("Retry-After"))
	}
	c.logger.Info("spotify returned an error",
		zap.String("endpoint", endpoint),
		zap.Int("status", uerr.StatusCode),
		zap.Duration("retry_after", uerr.RetryAfter))
	return uerr
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	}
	return limit
}
