package net

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"LessonBoard/internal/state"
)

// HydrationClient reads a room's persisted strokes from the hub.
type HydrationClient struct {
	base *url.URL
	http *http.Client
}

func NewHydrationClient(serverURL string, httpClient *http.Client) (*HydrationClient, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: missing host", serverURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HydrationClient{base: u, http: httpClient}, nil
}

func (h *HydrationClient) FetchStrokes(ctx context.Context, room string) ([]state.Stroke, error) {
	u := h.base.JoinPath("api", "rooms", room, "strokes")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var strokes []state.Stroke
	if err := json.NewDecoder(resp.Body).Decode(&strokes); err != nil {
		return nil, fmt.Errorf("failed to decode strokes: %w", err)
	}
	return strokes, nil
}
