// Package insights asks a hosted chat-completion model for a short narrative
// about a user's listening stats.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/logger"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/markdown"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/metrics"
)

const (
	// DefaultTimeout bounds the whole call including retries.
	DefaultTimeout = 8 * time.Second
	DefaultModel   = "gpt-4o-mini"

	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 2 * time.Second
	maxRetries     = 3

	instruction = "You write a short, upbeat personality summary of a listener from their Spotify stats. Answer in Markdown with a heading and at most three short paragraphs."
)

var (
	ErrNotConfigured = errors.New("insights: no API key configured")
	ErrUpstream      = errors.New("insights: model request failed")
)

// Stats is the aggregate a narrative is written from.
type Stats struct {
	TopArtists   []string `json:"top_artists"`
	TopTracks    []string `json:"top_tracks"`
	TopGenres    []string `json:"top_genres,omitempty"`
	MinutesSpent int      `json:"minutes_listened,omitempty"`
	Mood         string   `json:"mood,omitempty"`
}

// Narrative is the model's answer, raw and rendered.
type Narrative struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	Model    string `json:"model"`
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	http     *resty.Client
	model    string
	apiKey   string
	timeout  time.Duration
	renderer *markdown.Renderer
	logger   *zap.Logger
}

func NewClient(cfg Config, renderer *markdown.Renderer, l *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if renderer == nil {
		renderer = markdown.NewRenderer()
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetHeader("Content-Type", "application/json"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		renderer: renderer,
		logger:   logger.OrNop(l),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Narrate asks the model for a narrative. Transient 5xx and transport errors
// are retried with exponential backoff until the overall timeout expires.
func (c *Client) Narrate(ctx context.Context, stats Stats) (*Narrative, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats: %w", err)
	}
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: string(payload)},
		},
		Temperature: 0.8,
	}

	var out chatResponse
	operation := func() error {
		start := time.Now()
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(c.apiKey).
			SetBody(body).
			SetResult(&out).
			Post("/chat/completions")
		metrics.UpstreamLatency.WithLabelValues("llm").Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.UpstreamRequests.WithLabelValues("llm", "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		metrics.UpstreamRequests.WithLabelValues("llm", fmt.Sprintf("%d", resp.StatusCode())).Inc()

		switch {
		case resp.IsSuccess():
			return nil
		case resp.StatusCode() >= http.StatusInternalServerError:
			return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
		default:
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode()))
		}
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(initialBackoff),
				backoff.WithMaxInterval(maxBackoff),
			),
			maxRetries,
		),
		ctx,
	)

	err = backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		c.logger.Warn("retrying model request", zap.Error(err), zap.Duration("next", d))
	})
	if err != nil {
		return nil, err
	}

	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrUpstream)
	}

	text := out.Choices[0].Message.Content
	html, err := c.renderer.RenderString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to render narrative: %w", err)
	}
	return &Narrative{Markdown: text, HTML: html, Model: c.model}, nil
}
