// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP control surface of the daemon.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ManuGH/connectbridge/internal/event"
	"github.com/ManuGH/connectbridge/internal/health"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/player"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/tokenstore"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Controller is the player surface the API drives.
type Controller interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	PlayPause(ctx context.Context) error
	Next(ctx context.Context) error
	Prev(ctx context.Context) error
	Seek(ctx context.Context, positionMS uint32) error
	SetVolume(ctx context.Context, volume float64, raw bool) error
	Volume(ctx context.Context, raw bool) (float64, error)
	Load(ctx context.Context, uris ...string) error
	Token(ctx context.Context, scopes ...string) (tokenstore.Token, error)
	Metadata(ctx context.Context, uri string) (spirc.Metadata, bool, error)
	State() player.State
	DeviceID() string
	On(h player.Handler) (unsubscribe func())
	Done() <-chan struct{}
}

// Config configures the server.
type Config struct {
	Listen          string
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
	// ServiceName names HTTP spans. Empty disables tracing middleware.
	ServiceName string
	// Heartbeat is the keep-alive interval of event streams.
	Heartbeat time.Duration
	// Health serves /healthz and /readyz. Nil builds one that only watches
	// the bridge.
	Health *health.Manager
}

const (
	defaultHeartbeat       = 15 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	eventStreamBuffer      = 64
)

// Server serves the control API.
type Server struct {
	ctrl   Controller
	cfg    Config
	logger zerolog.Logger
	router chi.Router

	// stopping is closed when shutdown starts so event streams end.
	stopping chan struct{}
}

// New builds the router.
func New(ctrl Controller, cfg Config) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Health == nil {
		cfg.Health = health.NewManager("")
		cfg.Health.RegisterChecker(health.NewBridgeChecker(ctrl.Done()))
		cfg.Health.SetDetail("device_id", ctrl.DeviceID())
	}
	s := &Server{
		ctrl:     ctrl,
		cfg:      cfg,
		logger:   xglog.WithComponent("api"),
		stopping: make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	if s.cfg.ServiceName != "" {
		r.Use(Tracing(s.cfg.ServiceName))
	}
	r.Use(AccessLog)

	r.Get("/healthz", s.cfg.Health.ServeHealth)
	r.Get("/readyz", s.cfg.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(s.cfg.RateLimit, s.cfg.RateWindow))

		r.Route("/player", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Get("/token", s.handleToken)
			r.Get("/volume", s.handleGetVolume)
			r.Get("/metadata", s.handleMetadata)

			r.Post("/play", s.simple("play", s.ctrl.Play))
			r.Post("/pause", s.simple("pause", s.ctrl.Pause))
			r.Post("/toggle", s.simple("play_pause", s.ctrl.PlayPause))
			r.Post("/next", s.simple("next", s.ctrl.Next))
			r.Post("/prev", s.simple("prev", s.ctrl.Prev))
			r.Post("/seek", s.handleSeek)
			r.Post("/volume", s.handleSetVolume)
			r.Post("/load", s.handleLoad)
		})
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info().
		Str(xglog.FieldEvent, "api.listening").
		Str("addr", ln.Addr().String()).
		Msg("control API listening")

	select {
	case err := <-errCh:
		close(s.stopping)
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	close(s.stopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serve: %w", err)
	}
	s.logger.Info().Str(xglog.FieldEvent, "api.stopped").Msg("control API stopped")
	return nil
}

// ListenAndServe listens on cfg.Listen and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// recordTag is used for event stream framing.
func recordTag(rec event.Record) string {
	if tag := rec.Tag(); tag != "" {
		return tag
	}
	return "message"
}
