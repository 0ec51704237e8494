package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/insights"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/logger"
)

// Narrator writes a narrative from listening stats.
type Narrator interface {
	Narrate(ctx context.Context, stats insights.Stats) (*insights.Narrative, error)
}

// InsightsHandler handles POST /insights.
type InsightsHandler struct {
	tokens    Tokens
	narrator  Narrator
	jwtSecret string
	logger    *zap.Logger
}

func NewInsightsHandler(tokens Tokens, narrator Narrator, jwtSecret string, l *zap.Logger) *InsightsHandler {
	return &InsightsHandler{
		tokens:    tokens,
		narrator:  narrator,
		jwtSecret: jwtSecret,
		logger:    logger.OrNop(l),
	}
}

func (h *InsightsHandler) Generate(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}

	var stats insights.Stats
	if err := json.Unmarshal([]byte(req.Body), &stats); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if len(stats.TopArtists) == 0 && len(stats.TopTracks) == 0 {
		return errorResponse(http.StatusBadRequest, "top_artists or top_tracks is required"), nil
	}

	// Only signed-in users with a usable Spotify session get narratives.
	res, err := h.tokens.TokenForUser(ctx, userID)
	if resp, ok := tokenResponse(res, err); !ok {
		return resp, nil
	}

	n, err := h.narrator.Narrate(ctx, stats)
	switch {
	case errors.Is(err, insights.ErrNotConfigured):
		return errorResponse(http.StatusServiceUnavailable, "Insights are not available"), nil
	case errors.Is(err, context.DeadlineExceeded):
		return errorResponse(http.StatusGatewayTimeout, "Insights took too long"), nil
	case err != nil:
		h.logger.Warn("narrative generation failed", zap.String("user_id", userID), zap.Error(err))
		return errorResponse(http.StatusBadGateway, "Failed to generate insights"), nil
	}

	return jsonResponse(http.StatusOK, n), nil
}
