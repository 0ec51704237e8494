package spotify

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRateLimited is returned for HTTP 429. Retry after UpstreamError.RetryAfter.
	ErrRateLimited = errors.New("spotify: rate limited")
	// ErrUnauthorized is returned when Spotify rejects the access token.
	ErrUnauthorized = errors.New("spotify: unauthorized")
	// ErrUnavailable covers every other non-2xx response and transport failures.
	ErrUnavailable = errors.New("spotify: unavailable")
)

// UpstreamError describes a failed Spotify Web API call.
type UpstreamError struct {
	Endpoint   string
	StatusCode int // 0 for transport failures
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("spotify %s: %v", e.Endpoint, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("spotify %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("spotify %s: status %d", e.Endpoint, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrUnavailable:
		return e.StatusCode != http.StatusTooManyRequests && e.StatusCode != http.StatusUnauthorized
	}
	return false
}
