package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/cache"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/logger"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/spotify"
)

const (
	defaultPlaylistLimit = 10
	// MaxFanOut caps how many playlists get their tracks attached.
	MaxFanOut = 10
)

// Upstream is the subset of the Spotify client used by the handlers.
type Upstream interface {
	SearchPlaylists(ctx context.Context, token, q string, limit int) (*spotify.PlaylistSearch, error)
	SearchTracks(ctx context.Context, token, q string, limit int) (*spotify.TrackSearch, error)
	PlaylistTracks(ctx context.Context, token, playlistID string) (*spotify.PlaylistTracks, error)
	CurrentUser(ctx context.Context, token string) (*spotify.User, error)
}

// Caches groups the process-wide response caches in front of Spotify.
type Caches struct {
	Playlists      *cache.Cache[[]spotify.Playlist]
	PlaylistTracks *cache.Cache[[]spotify.Track]
	Tracks         *cache.Cache[*spotify.TrackSearch]
}

// NewCaches creates the response caches with a shared TTL.
func NewCaches(opts ...cache.Option) *Caches {
	return NewCachesWithTTL(cache.DefaultTTL, opts...)
}

func NewCachesWithTTL(ttl time.Duration, opts ...cache.Option) *Caches {
	return &Caches{
		Playlists:      cache.New[[]spotify.Playlist]("search-playlists", ttl, opts...),
		PlaylistTracks: cache.New[[]spotify.Track]("playlist-tracks", ttl, opts...),
		Tracks:         cache.New[*spotify.TrackSearch]("search-track", ttl, opts...),
	}
}

// StartJanitors sweeps expired entries from every cache until ctx is done.
func (c *Caches) StartJanitors(ctx context.Context, interval time.Duration) {
	c.Playlists.StartJanitor(ctx, interval)
	c.PlaylistTracks.StartJanitor(ctx, interval)
	c.Tracks.StartJanitor(ctx, interval)
}

// SearchHandler handles the Spotify search routes.
type SearchHandler struct {
	tokens    Tokens
	upstream  Upstream
	caches    *Caches
	jwtSecret string
	maxFanOut int
	logger    *zap.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(tokens Tokens, upstream Upstream, caches *Caches, jwtSecret string, maxFanOut int, l *zap.Logger) *SearchHandler {
	if maxFanOut <= 0 || maxFanOut > MaxFanOut {
		maxFanOut = MaxFanOut
	}
	return &SearchHandler{
		tokens:    tokens,
		upstream:  upstream,
		caches:    caches,
		jwtSecret: jwtSecret,
		maxFanOut: maxFanOut,
		logger:    logger.OrNop(l),
	}
}

// SearchPlaylists handles GET /search-playlists?q=&limit=&includeTracks=
func (h *SearchHandler) SearchPlaylists(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}

	query := strings.TrimSpace(req.QueryStringParameters["q"])
	if query == "" {
		return errorResponse(http.StatusBadRequest, "Query parameter 'q' is required"), nil
	}

	limit := defaultPlaylistLimit
	if raw := req.QueryStringParameters["limit"]; raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > spotify.MaxSearchLimit {
			return errorResponse(http.StatusBadRequest, "Query parameter 'limit' must be between 1 and 50"), nil
		}
	}
	includeTracks, _ := strconv.ParseBool(req.QueryStringParameters["includeTracks"])

	res, err := h.tokens.TokenForUser(ctx, userID)
	if resp, ok := tokenResponse(res, err); !ok {
		if err != nil {
			h.logger.Error("failed to load session", zap.String("user_id", userID), zap.Error(err))
		}
		return resp, nil
	}

	key := cache.PlaylistSearchKey(query, limit, includeTracks)
	playlists, err := h.caches.Playlists.GetOrFetch(ctx, key, func(ctx context.Context) ([]spotify.Playlist, error) {
		search, err := h.upstream.SearchPlaylists(ctx, res.Token, query, limit)
		if err != nil {
			return nil, err
		}
		list := search.Compact()
		if includeTracks {
			h.attachTracks(ctx, res.Token, list)
		}
		return list, nil
	})
	if err != nil {
		h.logger.Warn("playlist search failed", zap.String("query", query), zap.Error(err))
		return upstreamErrorResponse(err), nil
	}

	return withMaxAge(jsonResponse(http.StatusOK, map[string]any{"playlists": playlists}), h.caches.Playlists.TTL()), nil
}

// attachTracks fills TracksList for the first playlists concurrently. A
// playlist whose tracks cannot be fetched is left without them.
func (h *SearchHandler) attachTracks(ctx context.Context, accessToken string, list []spotify.Playlist) {
	n := min(len(list), MaxFanOut)

	var g errgroup.Group
	g.SetLimit(h.maxFanOut)
	for i := range n {
		id := list[i].ID
		g.Go(func() error {
			tracks, err := h.caches.PlaylistTracks.GetOrFetch(ctx, cache.PlaylistTracksKey(id), func(ctx context.Context) ([]spotify.Track, error) {
				page, err := h.upstream.PlaylistTracks(ctx, accessToken, id)
				if err != nil {
					return nil, err
				}
				return page.List(), nil
			})
			if err != nil {
				h.logger.Info("skipping playlist tracks", zap.String("playlist_id", id), zap.Error(err))
				return nil
			}
			list[i].TracksList = tracks
			return nil
		})
	}
	_ = g.Wait()
}

// SearchTrack handles GET /search-track?q= and returns the best match.
func (h *SearchHandler) SearchTrack(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}

	query := strings.TrimSpace(req.QueryStringParameters["q"])
	if query == "" {
		return errorResponse(http.StatusBadRequest, "Query parameter 'q' is required"), nil
	}

	res, err := h.tokens.TokenForUser(ctx, userID)
	if resp, ok := tokenResponse(res, err); !ok {
		if err != nil {
			h.logger.Error("failed to load session", zap.String("user_id", userID), zap.Error(err))
		}
		return resp, nil
	}

	search, err := h.caches.Tracks.GetOrFetch(ctx, cache.TrackSearchKey(query), func(ctx context.Context) (*spotify.TrackSearch, error) {
		return h.upstream.SearchTracks(ctx, res.Token, query, 1)
	})
	if err != nil {
		h.logger.Warn("track search failed", zap.String("query", query), zap.Error(err))
		return upstreamErrorResponse(err), nil
	}

	if len(search.Tracks.Items) == 0 {
		return errorResponse(http.StatusNotFound, "No track found"), nil
	}
	return withMaxAge(jsonResponse(http.StatusOK, map[string]any{"track": search.Tracks.Items[0]}), h.caches.Tracks.TTL()), nil
}

// withMaxAge lets the browser reuse a search result for as long as the
// server-side cache would.
func withMaxAge(resp events.APIGatewayProxyResponse, ttl time.Duration) events.APIGatewayProxyResponse {
	resp.Headers["Cache-Control"] = fmt.Sprintf("private, max-age=%d", int(ttl.Seconds()))
	return resp
}
