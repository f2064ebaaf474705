// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/connectbridge/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const (
	trackA   = "spotify:track:4GNcXTGWmnZ3ySrqvol3o4"
	trackB   = "spotify:track:6rqhFgbbKwnb9MLmUQDhG6"
	playlist = "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()), WithRateLimit(rate.Inf, 1))
}

func TestPlay_TrackList(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/me/player/play", r.URL.Path)
		assert.Equal(t, "dev123", r.URL.Query().Get("device_id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Play(context.Background(), "tok", "dev123", []string{trackA, trackB}))
	assert.Equal(t, map[string]any{"uris": []any{trackA, trackB}}, got)
}

func TestPlay_ContextURI(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})
	require.NoError(t, c.Play(context.Background(), "tok", "", []string{playlist}))
	assert.Equal(t, map[string]any{"context_uri": playlist}, got)
}

func TestPlayBody_Invalid(t *testing.T) {
	for name, uris := range map[string][]string{
		"empty":          nil,
		"garbage":        {"not-a-uri"},
		"bad type":       {"spotify:user:abc"},
		"two contexts":   {playlist, playlist},
		"mixed contexts": {trackA, playlist},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := PlayBody(uris)
			assert.ErrorIs(t, err, ErrInvalidURI)
		})
	}
}

func TestPlay_ErrorResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"status":404,"message":"Device not found","reason":"NO_ACTIVE_DEVICE"}}`))
	})

	err := c.Play(context.Background(), "tok", "dev", []string{trackA})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoActiveDevice)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NO_ACTIVE_DEVICE", apiErr.Reason)
	assert.Equal(t, "Device not found", apiErr.Message)
	assert.Equal(t, 3*time.Second, apiErr.RetryAfter)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestPlay_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	err := c.Play(context.Background(), "tok", "dev", []string{trackA})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorContains(t, err, "upstream exploded")
}

func TestSentinelFor(t *testing.T) {
	assert.ErrorIs(t, sentinelFor(401), ErrUnauthorized)
	assert.ErrorIs(t, sentinelFor(403), ErrForbidden)
	assert.ErrorIs(t, sentinelFor(429), ErrRateLimited)
	assert.ErrorIs(t, sentinelFor(400), ErrBadRequest)
	assert.ErrorIs(t, sentinelFor(503), ErrUpstream)
}

func TestPlay_RateLimiterHonoursContext(t *testing.T) {
	c := New(WithBaseURL("http://127.0.0.1:1"), WithRateLimit(rate.Limit(0.001), 1))
	c.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Play(ctx, "tok", "dev", []string{trackA})
	assert.ErrorContains(t, err, "rate limiter")
}

func TestPlay_BreakerOpensOnUpstreamFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	b := resilience.New("webapi-test", 2, time.Hour, resilience.WithFailureFilter(upstreamFailure))
	c := New(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(rate.Inf, 1), WithBreaker(b))

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, c.Play(context.Background(), "tok", "dev", []string{trackA}), ErrUpstream)
	}
	err := c.Play(context.Background(), "tok", "dev", []string{trackA})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestPlay_ClientErrorsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, c.Play(context.Background(), "tok", "dev", []string{trackA}), ErrNoActiveDevice)
	}
	assert.Equal(t, resilience.StateClosed, c.breaker.State())
}
