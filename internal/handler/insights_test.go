package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/handler"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/insights"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/model"
)

type fakeNarrator struct {
	err   error
	calls int
}

func (f *fakeNarrator) Narrate(_ context.Context, stats insights.Stats) (*insights.Narrative, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &insights.Narrative{Markdown: "# Hi", HTML: "<h1>Hi</h1>", Model: "test"}, nil
}

const statsBody = `{"top_artists":["Dua Lipa"],"top_tracks":["Levitating"]}`

func TestInsights_Generate(t *testing.T) {
	m, _ := newManager(t)
	saveSession(t, m, freshSession())
	n := &fakeNarrator{}
	h := handler.NewInsightsHandler(m, n, testJWTSecret, nil)

	resp, _ := h.Generate(context.Background(), makeRequest("POST", "/insights", statsBody))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	var body insights.Narrative
	decode(t, resp, &body)
	if body.HTML != "<h1>Hi</h1>" {
		t.Errorf("Unexpected narrative %+v", body)
	}
}

func TestInsights_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		narrateErr error
		errored    bool
		wantStatus int
	}{
		{"bad json", "{", nil, false, http.StatusBadRequest},
		{"empty stats", "{}", nil, false, http.StatusBadRequest},
		{"errored session", statsBody, nil, true, http.StatusUnauthorized},
		{"not configured", statsBody, insights.ErrNotConfigured, false, http.StatusServiceUnavailable},
		{"timeout", statsBody, context.DeadlineExceeded, false, http.StatusGatewayTimeout},
		{"upstream", statsBody, errors.Join(insights.ErrUpstream, errors.New("500")), false, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newManager(t)
			s := freshSession()
			if tt.errored {
				s.Error = model.RefreshAccessTokenError
			}
			saveSession(t, m, s)
			n := &fakeNarrator{err: tt.narrateErr}
			h := handler.NewInsightsHandler(m, n, testJWTSecret, nil)

			resp, _ := h.Generate(context.Background(), makeRequest("POST", "/insights", tt.body))
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, resp.Body)
			}
			if tt.errored && n.calls != 0 {
				t.Error("Expected no model call for an errored session")
			}
		})
	}
}
