// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package webapi is a minimal client for the player endpoints of the Web API.
package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/connectbridge/internal/event"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/metrics"
	"github.com/ManuGH/connectbridge/internal/resilience"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production Web API.
const DefaultBaseURL = "https://api.spotify.com"

const maxErrorBody = 64 << 10

// Client calls the Web API with a caller-supplied bearer token.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API origin.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit sets the client-side request rate.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithBreaker replaces the circuit breaker guarding upstream calls.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// upstreamFailure reports whether err says the Web API itself is unhealthy.
// Client errors and caller cancellation do not count.
func upstreamFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

// New returns a client with a traced transport, a 10 req/s limit and a
// breaker that opens after five consecutive upstream failures.
func New(opts ...Option) *Client {
	c := &Client{
		base: DefaultBaseURL,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
		breaker: resilience.New("webapi", 5, 30*time.Second, resilience.WithFailureFilter(upstreamFailure)),
		logger:  xglog.WithComponent("webapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type playBody struct {
	URIs       []string `json:"uris,omitempty"`
	ContextURI string   `json:"context_uri,omitempty"`
}

// PlayBody builds the request body for uris: a track list when every URI is
// a track or episode, otherwise a single context URI.
func PlayBody(uris []string) (any, error) {
	if len(uris) == 0 {
		return nil, fmt.Errorf("%w: no uris", ErrInvalidURI)
	}
	playable := true
	for _, u := range uris {
		id, err := event.ParseURI(u)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURI, u, err)
		}
		if id.Type != event.ItemTypeTrack && id.Type != event.ItemTypeEpisode {
			playable = false
		}
	}
	if playable {
		return playBody{URIs: uris}, nil
	}
	if len(uris) > 1 {
		return nil, fmt.Errorf("%w: only one context uri may be played at a time", ErrInvalidURI)
	}
	return playBody{ContextURI: uris[0]}, nil
}

// Breaker returns the circuit breaker guarding upstream calls.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Play starts playback of uris on deviceID.
func (c *Client) Play(ctx context.Context, token, deviceID string, uris []string) error {
	body, err := PlayBody(uris)
	if err != nil {
		return err
	}
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	return c.do(ctx, "play", http.MethodPut, "/v1/me/player/play", q, token, body)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, body any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webapi: %s: rate limiter: %w", op, err)
	}
	err := c.breaker.Execute(func() error {
		return c.send(ctx, op, method, path, query, token, body)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		metrics.RecordWebAPIRequest(op, "circuit_open")
		return fmt.Errorf("webapi: %s: %w", op, err)
	}
	return err
}

func (c *Client) send(ctx context.Context, op, method, path string, query url.Values, token string, body any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("webapi: %s: encode: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("webapi: %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		metrics.RecordWebAPIRequest(op, "transport_error")
		return fmt.Errorf("webapi: %s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()
	metrics.RecordWebAPIRequest(op, strconv.Itoa(res.StatusCode))

	c.logger.Debug().
		Str(xglog.FieldOperation, op).
		Int("status", res.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("web api request")

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return decodeError(op, res)
}

func decodeError(op string, res *http.Response) error {
	apiErr := &APIError{
		Sentinel:  sentinelFor(res.StatusCode),
		Operation: op,
		Status:    res.StatusCode,
	}
	if s := res.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	var envelope struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Reason = envelope.Error.Reason
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
